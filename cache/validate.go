package cache

import "time"

// Reason explains a validation verdict.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNoRecord              Reason = "NO_RECORD"
	ReasonCorruptRecord         Reason = "CORRUPT_RECORD"
	ReasonInvalidTTL            Reason = "INVALID_TTL"
	ReasonExpired               Reason = "EXPIRED"
	ReasonVersionMismatch       Reason = "VERSION_MISMATCH"
	ReasonSensitiveDataMismatch Reason = "SENSITIVE_DATA_MISMATCH"
	ReasonAppVersionMismatch    Reason = "APP_VERSION_MISMATCH"
)

// Verdict is the outcome of Validate.
type Verdict struct {
	Hit    bool
	Reason Reason
}

// Hit is the verdict for a servable entry.
func Hit() Verdict { return Verdict{Hit: true} }

// Miss is a verdict with the given reason.
func Miss(reason Reason) Verdict { return Verdict{Reason: reason} }

func (v Verdict) String() string {
	if v.Hit {
		return "HIT"
	}
	return "MISS/" + string(v.Reason)
}

// Validate decides whether rec may satisfy a request with policy p.
//
// Checks run in a fixed order (TTL, expiry, version, fingerprint, app
// version) and the first failing check names the reason. A nil rec is
// ReasonNoRecord.
func Validate(p Policy, rec *Record, appVersion string, now time.Time) Verdict {
	if rec == nil {
		return Miss(ReasonNoRecord)
	}
	if p.TTL <= 0 {
		return Miss(ReasonInvalidTTL)
	}
	if now.Sub(rec.Created()) > p.TTL {
		return Miss(ReasonExpired)
	}
	if rec.Version != p.Version {
		return Miss(ReasonVersionMismatch)
	}
	if rec.SensitiveFingerprint != p.SensitiveFingerprint {
		return Miss(ReasonSensitiveDataMismatch)
	}
	if p.InvalidateOnAppUpdate && rec.AppVersion != appVersion {
		return Miss(ReasonAppVersionMismatch)
	}
	return Hit()
}
