package collection

type changeSub struct {
	id int
	fn ChangeFunc
}

type errorSub struct {
	id int
	fn ErrorFunc
}

// listeners keeps subscribers in registration order. Emission iterates over a
// snapshot so subscribers may unsubscribe (or close the collection) mid-emit.
type listeners struct {
	nextID int
	change []changeSub
	errs   []errorSub
}

func (l *listeners) addChange(fn ChangeFunc) func() {
	l.nextID++
	id := l.nextID
	l.change = append(l.change, changeSub{id: id, fn: fn})
	return func() {
		for i, s := range l.change {
			if s.id == id {
				l.change = append(l.change[:i:i], l.change[i+1:]...)
				return
			}
		}
	}
}

func (l *listeners) addError(fn ErrorFunc) func() {
	l.nextID++
	id := l.nextID
	l.errs = append(l.errs, errorSub{id: id, fn: fn})
	return func() {
		for i, s := range l.errs {
			if s.id == id {
				l.errs = append(l.errs[:i:i], l.errs[i+1:]...)
				return
			}
		}
	}
}

func (l *listeners) emitChange(c *Collection) {
	snapshot := l.change
	for _, s := range snapshot {
		if c.closed {
			return
		}
		s.fn(c)
	}
}

func (l *listeners) emitError(c *Collection, err error) {
	snapshot := l.errs
	for _, s := range snapshot {
		if c.closed {
			return
		}
		s.fn(c, err)
	}
}

func (l *listeners) clear() {
	l.change = nil
	l.errs = nil
}
