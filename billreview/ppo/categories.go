package ppo

import "strings"

// OtherCategory is recorded for procedure codes outside every known category.
const OtherCategory = "Other"

type category struct {
	name  string
	codes []string
}

var procedureCategories = []category{
	{"MRI w/o", []string{"74181", "70551", "72141", "71550", "73721", "73718", "72148", "70540", "72195", "72146", "73221", "73218"}},
	{"MRI w/", []string{"74182", "70552", "72142", "71551", "73722", "73719", "72149", "70542", "72196", "72147", "73222", "73219"}},
	{"MRI w/&w/o", []string{"74183", "70553", "72156", "71552", "73723", "73720", "72158", "70543", "72197", "72157", "73223", "73220"}},
	{"CT w/o", []string{"74176", "74150", "72125", "70450", "73700", "72131", "70486", "70480", "72192", "70490", "72128", "71250", "73200"}},
	{"CT w/", []string{"74177", "74160", "72126", "70460", "73701", "72132", "70487", "70481", "72193", "70491", "72129", "71260", "73201"}},
	{"CT w/&w/o", []string{"74178", "74170", "72127", "70470", "73702", "72133", "70488", "70482", "72194", "70492", "72130", "71270", "73202"}},
	{"xray", []string{"74010", "74000", "74020", "76080", "73050", "73600", "73610", "77072", "77073", "73650", "72040", "72050",
		"71010", "71021", "71023", "71022", "71020", "71030", "71034", "71035"}},
}

// Categories returns the category names in display order.
func Categories() []string {
	names := make([]string, 0, len(procedureCategories))
	for _, c := range procedureCategories {
		names = append(names, c.name)
	}
	return names
}

// ProceduresInCategory returns the codes of name, or nil for an unknown category.
func ProceduresInCategory(name string) []string {
	for _, c := range procedureCategories {
		if c.name == name {
			return append([]string(nil), c.codes...)
		}
	}
	return nil
}

// CategoryMap returns every category with its codes.
func CategoryMap() map[string][]string {
	m := make(map[string][]string, len(procedureCategories))
	for _, c := range procedureCategories {
		m[c.name] = append([]string(nil), c.codes...)
	}
	return m
}

// CategoryOf returns the category of procCd, or OtherCategory.
func CategoryOf(procCd string) string {
	for _, c := range procedureCategories {
		for _, code := range c.codes {
			if code == procCd {
				return c.name
			}
		}
	}
	return OtherCategory
}

// CleanTIN keeps the digits of tin. Anything but nine digits yields "".
func CleanTIN(tin string) string {
	var b strings.Builder
	for _, r := range tin {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() != 9 {
		return ""
	}
	return b.String()
}
