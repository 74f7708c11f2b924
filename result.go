package dkim

// Status is a DKIM result code as registered for the Authentication-Results
// header by RFC 8601 section 2.7.1.
type Status string

const (
	StatusNone      Status = "none"
	StatusPass      Status = "pass"
	StatusFail      Status = "fail"
	StatusPolicy    Status = "policy"
	StatusNeutral   Status = "neutral"
	StatusTempError Status = "temperror"
	StatusPermError Status = "permerror"
)

// Status classifies r for an Authentication-Results header: pass if a
// signature verified, temperror/permerror for a transient or permanent
// failure (per IsTempFail/IsPermFail), neutral if no matching signature
// was found at all.
func (r *Result) Status() Status {
	switch {
	case r.Pass():
		return StatusPass
	case r.Err == nil:
		return StatusNeutral
	case IsTempFail(r.Err):
		return StatusTempError
	case IsPermFail(r.Err):
		return StatusPermError
	default:
		return StatusNeutral
	}
}

// WithDetail formats r as the reason comment an Authentication-Results
// header attaches to a dkim result, e.g. "(body hash did not verify)". It
// returns "" for both Pass and Neutral, since RFC 8601 only attaches a
// comment to fail/temperror/permerror results.
func (r *Result) WithDetail() string {
	if r.Err == nil {
		return ""
	}
	return "(" + r.Err.Error() + ")"
}
