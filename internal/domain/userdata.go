package domain

// Field names a normalized user-data key independent of any platform wire name.
type Field string

const (
	FieldEmail       Field = "email"
	FieldPhone       Field = "phone"
	FieldFirstName   Field = "first_name"
	FieldLastName    Field = "last_name"
	FieldExternalID  Field = "external_id"
	FieldCity        Field = "city"
	FieldState       Field = "state"
	FieldZip         Field = "zip"
	FieldCountry     Field = "country"
	FieldGender      Field = "gender"
	FieldDateOfBirth Field = "date_of_birth"

	FieldFBC       Field = "fbc"
	FieldFBP       Field = "fbp"
	FieldScClickID Field = "sc_click_id"
	FieldScCookie1 Field = "sc_cookie1"
	FieldTTCLID    Field = "ttclid"
	FieldTTP       Field = "ttp"
	FieldIP        Field = "ip"
	FieldUserAgent Field = "user_agent"
)

// NormalizedUserData never contains unhashed PII: Hashed carries hex SHA-256
// digests, Passthrough carries identifiers platforms expect in clear text.
type NormalizedUserData struct {
	Hashed      map[Field]string
	Passthrough map[Field]string
}

func (n NormalizedUserData) Has(f Field) bool {
	if _, ok := n.Hashed[f]; ok {
		return true
	}
	_, ok := n.Passthrough[f]
	return ok
}

// Get returns the hashed value of f, falling back to the passthrough value.
func (n NormalizedUserData) Get(f Field) (string, bool) {
	if v, ok := n.Hashed[f]; ok {
		return v, true
	}
	v, ok := n.Passthrough[f]
	return v, ok
}

func (n NormalizedUserData) HasAny(fields ...Field) bool {
	for _, f := range fields {
		if n.Has(f) {
			return true
		}
	}
	return false
}

// Presence is the log-safe summary of which identifiers an event carries.
type Presence struct {
	Email      bool
	Phone      bool
	ExternalID bool
	ClickID    bool
	IP         bool
	UserAgent  bool
}

func (n NormalizedUserData) Presence() Presence {
	return Presence{
		Email:      n.Has(FieldEmail),
		Phone:      n.Has(FieldPhone),
		ExternalID: n.Has(FieldExternalID),
		ClickID:    n.HasAny(FieldFBC, FieldFBP, FieldScClickID, FieldScCookie1, FieldTTCLID, FieldTTP),
		IP:         n.Has(FieldIP),
		UserAgent:  n.Has(FieldUserAgent),
	}
}
