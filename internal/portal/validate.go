package portal

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Axmae/ambulance-management/internal/model"
)

var emailRx = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Moroccan numbers: +212 or 0, then 5, 6 or 7, then eight digits.
var phoneRx = regexp.MustCompile(`^(\+212|0)[5-7]\d{8}$`)

// Message keys for portal form errors.
const (
	MsgNameShort        = "err_name_short"
	MsgEmailInvalid     = "err_email_invalid"
	MsgPhoneInvalid     = "err_phone_invalid"
	MsgPasswordShort    = "err_password_short"
	MsgPasswordMismatch = "err_password_mismatch"
	MsgEmailTaken       = "err_email_taken"
)

const (
	minNameLen     = 3
	minPasswordLen = 8
)

// SignupForm is the data entered on the signup page.
type SignupForm struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Confirm  string
}

// ProfileForm is the editable part of a portal user. The email is the login
// identity and cannot be changed here.
type ProfileForm struct {
	Name    string
	Phone   string
	Address string
}

func Email(v string) string {
	if len(v) > 320 || !emailRx.MatchString(v) {
		return MsgEmailInvalid
	}
	return ""
}

func Phone(v string) string {
	if !phoneRx.MatchString(strings.Join(strings.Fields(v), "")) {
		return MsgPhoneInvalid
	}
	return ""
}

func Name(v string) string {
	if utf8.RuneCountInString(strings.TrimSpace(v)) < minNameLen {
		return MsgNameShort
	}
	return ""
}

// Validate checks a signup form. It reports every failing field.
func (f SignupForm) Validate() model.FieldErrors {
	errs := model.FieldErrors{}
	if msg := Name(f.Name); msg != "" {
		errs["name"] = msg
	}
	if msg := Email(strings.TrimSpace(f.Email)); msg != "" {
		errs["email"] = msg
	}
	if msg := Phone(f.Phone); msg != "" {
		errs["phone"] = msg
	}
	if len(f.Password) < minPasswordLen {
		errs["password"] = MsgPasswordShort
	} else if f.Password != f.Confirm {
		errs["confirm"] = MsgPasswordMismatch
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks a profile form; an empty phone is allowed.
func (f ProfileForm) Validate() model.FieldErrors {
	errs := model.FieldErrors{}
	if msg := Name(f.Name); msg != "" {
		errs["name"] = msg
	}
	if strings.TrimSpace(f.Phone) != "" {
		if msg := Phone(f.Phone); msg != "" {
			errs["phone"] = msg
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// More message keys for request forms.
const (
	MsgTooLong    = "err_too_long"
	MsgDateRange  = "err_date_range"
	MsgOutOfRange = "err_out_of_range"
)

// Kinds of request form inputs.
const (
	InputText     = "text"
	InputTextarea = "textarea"
	InputTel      = "tel"
	InputDate     = "date"
	InputTime     = "time"
	InputNumber   = "number"
	InputSelect   = "select"
	InputRadio    = "radio"
	InputChecks   = "checks"
)

// BookingWindow is how far ahead a transport or visit can be booked.
const BookingWindow = 30 * 24 * time.Hour

const maxDescription = 500

// DetailField is one type-specific input of a service request.
type DetailField struct {
	Name     string
	Kind     string
	Required bool
	Options  []string
	Min, Max int
	MaxLen   int
	Default  string
}

// RequestFields lists the inputs of each request type, in form order. The
// address is common to every type and kept outside Details.
var RequestFields = map[string][]DetailField{
	model.RequestUrgent: {
		{Name: "phone", Kind: InputTel, Required: true},
		{Name: "problemType", Kind: InputSelect, Required: true,
			Options: []string{"accident", "heart", "stroke", "breathing", "bleeding", "fall", "burn", "poisoning", "other"}},
		{Name: "description", Kind: InputTextarea, MaxLen: maxDescription},
		{Name: "affectedPeople", Kind: InputNumber, Min: 1, Max: 10, Default: "1"},
		{Name: "urgency", Kind: InputRadio, Options: []string{"high", "medium", "low"}, Default: "high"},
		{Name: "hospital", Kind: InputText},
	},
	model.RequestTransport: {
		{Name: "destinationType", Kind: InputSelect, Required: true,
			Options: []string{"hospital", "clinic", "center", "home", "other"}},
		{Name: "destinationDetails", Kind: InputText},
		{Name: "date", Kind: InputDate, Required: true},
		{Name: "time", Kind: InputTime, Required: true},
		{Name: "patientType", Kind: InputSelect, Required: true,
			Options: []string{"adult", "elderly", "child", "pregnant", "disabled", "bedridden"}},
		{Name: "equipment", Kind: InputChecks,
			Options: []string{"oxygen", "stretcher", "wheelchair", "monitor", "drip", "none"}},
		{Name: "notes", Kind: InputTextarea},
	},
	model.RequestDoctor: {
		{Name: "date", Kind: InputDate, Required: true},
		{Name: "time", Kind: InputTime, Required: true},
		{Name: "consultationType", Kind: InputSelect, Required: true,
			Options: []string{"general", "pediatric", "geriatric", "cardiology", "emergency"}},
		{Name: "symptoms", Kind: InputChecks,
			Options: []string{"fever", "cough", "pain", "nausea", "fatigue", "breathing", "digestive", "other"}},
		{Name: "patientCount", Kind: InputNumber, Min: 1, Max: 5, Default: "1"},
		{Name: "description", Kind: InputTextarea, MaxLen: maxDescription},
		{Name: "medication", Kind: InputTextarea},
		{Name: "history", Kind: InputTextarea},
	},
}

// Validate checks a request form against its type's inputs and returns the
// cleaned details: trimmed, defaults filled in, unknown keys dropped.
// Checkbox groups travel as comma separated values. now anchors the booking
// window of date inputs.
func (f RequestForm) Validate(now time.Time) (map[string]string, model.FieldErrors) {
	errs := model.FieldErrors{}
	fields, ok := RequestFields[f.Type]
	if !ok {
		errs["type"] = model.MsgInvalidValue
	}
	if strings.TrimSpace(f.Address) == "" {
		errs["address"] = model.MsgRequired
	}

	details := map[string]string{}
	for _, fd := range fields {
		v := strings.TrimSpace(f.Details[fd.Name])
		if v == "" {
			v = fd.Default
		}
		if v == "" {
			if fd.Required {
				errs[fd.Name] = model.MsgRequired
			}
			continue
		}
		clean, msg := fd.check(v, now)
		if msg != "" {
			errs[fd.Name] = msg
			continue
		}
		details[fd.Name] = clean
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if len(details) == 0 {
		details = nil
	}
	return details, nil
}

func (fd DetailField) check(v string, now time.Time) (string, string) {
	switch fd.Kind {
	case InputTel:
		if msg := Phone(v); msg != "" {
			return "", msg
		}
		return strings.Join(strings.Fields(v), ""), ""
	case InputSelect, InputRadio:
		if !slices.Contains(fd.Options, v) {
			return "", model.MsgInvalidValue
		}
	case InputChecks:
		var picked []string
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o == "" || slices.Contains(picked, o) {
				continue
			}
			if !slices.Contains(fd.Options, o) {
				return "", model.MsgInvalidValue
			}
			picked = append(picked, o)
		}
		return strings.Join(picked, ","), ""
	case InputNumber:
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", model.MsgNotInteger
		}
		if n < fd.Min || n > fd.Max {
			return "", MsgOutOfRange
		}
		return strconv.Itoa(n), ""
	case InputDate:
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return "", model.MsgInvalidDate
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if d.Before(today) || d.After(today.Add(BookingWindow)) {
			return "", MsgDateRange
		}
	case InputTime:
		if _, err := time.Parse("15:04", v); err != nil {
			return "", model.MsgInvalidValue
		}
	}
	if fd.MaxLen > 0 && utf8.RuneCountInString(v) > fd.MaxLen {
		return "", MsgTooLong
	}
	return v, ""
}
