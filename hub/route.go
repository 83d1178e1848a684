package hub

// RouterFunc implements Router for plain functions.
type RouterFunc func(*Msg)

func (f RouterFunc) Route(m *Msg) { f(m) }

// Subjects returns a router that passes only messages with one of subjs on to r.
func Subjects(r Router, subjs ...string) Router {
	set := make(map[string]bool, len(subjs))
	for _, s := range subjs {
		set[s] = true
	}
	return RouterFunc(func(m *Msg) {
		if set[m.Subj] {
			r.Route(m)
		}
	})
}

// Routers passes every message to each of its routers in order.
type Routers []Router

func (rs Routers) Route(m *Msg) {
	for _, r := range rs {
		r.Route(m)
	}
}
