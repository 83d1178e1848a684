package log

type TB interface {
	Errorf(string, ...interface{})
	Fatalf(string, ...interface{})
	Logf(string, ...interface{})
	Helper()
}

// Testing routes log messages to a test. Errors fail the test, critical messages stop it.
type Testing struct {
	TB
	Tags []interface{}
}

func (l *Testing) Debug(m string, s ...interface{}) {
	l.Helper()
	l.Logf(tfmt("DEB ", m, s, l.Tags))
}
func (l *Testing) Error(m string, s ...interface{}) {
	l.Helper()
	l.Errorf(tfmt("ERR ", m, s, l.Tags))
}
func (l *Testing) Crit(m string, s ...interface{}) {
	l.Helper()
	l.Fatalf(tfmt("CRI ", m, s, l.Tags))
}
func (l *Testing) With(tags ...interface{}) Logger {
	t := make([]interface{}, 0, len(tags)+len(l.Tags))
	t = append(t, tags...)
	t = append(t, l.Tags...)
	return &Testing{l.TB, t}
}
