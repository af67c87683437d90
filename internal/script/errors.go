package script

import "fmt"

// MalformedDurationError reports offset text that is neither MM:SS.s nor HH:MM:SS.s.
type MalformedDurationError struct {
	Text   string
	Reason string
}

func (e *MalformedDurationError) Error() string {
	return fmt.Sprintf("malformed duration %q: %s", e.Text, e.Reason)
}

// MalformedLineError reports a script line that does not fit its keyword's layout.
// Want/Got carry the field counts when the mismatch is about arity.
type MalformedLineError struct {
	Line    int
	Keyword string
	Want    int
	Got     int
	Reason  string
}

func (e *MalformedLineError) Error() string {
	switch {
	case e.Want > 0:
		return fmt.Sprintf("line %d: %s: expected %d fields, got %d", e.Line, e.Keyword, e.Want, e.Got)
	case e.Keyword != "":
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Keyword, e.Reason)
	default:
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
}

// UnknownCommandError reports a line whose leading keyword is not recognized.
type UnknownCommandError struct {
	Line    int
	Keyword string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("line %d: unknown command %q", e.Line, e.Keyword)
}

// lineError attaches a line number to an error that does not carry one.
type lineError struct {
	line int
	err  error
}

func (e *lineError) Error() string { return fmt.Sprintf("line %d: %v", e.line, e.err) }
func (e *lineError) Unwrap() error { return e.err }
