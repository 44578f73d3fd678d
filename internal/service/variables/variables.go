package variables

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
)

// Input bundles the pipeline context a template can reference.
type Input struct {
	Lead        *domain.Lead
	Opportunity *domain.Opportunity
	OwnerName   string
	// Booking is the most recent booking of the type implied by the
	// current or trigger stage. May be nil.
	Booking     *domain.Booking
	MeetLink    string
	PaymentLink string
	SiteURL     string
	BookingPath string
}

// Resolve produces the flat key to value map used to render template
// placeholders. Keys with no computable value are present as empty
// strings so templates degrade gracefully instead of erroring.
func Resolve(in Input) map[string]string {
	vars := map[string]string{
		"name":         "",
		"first_name":   "",
		"owner_name":   "the team",
		"project_type": "wardrobe",
		"booking_link": "",
		"meet_link":    in.MeetLink,
		"payment_link": in.PaymentLink,
		"amount":       "",
		"date":         "",
		"time":         "",
	}

	if in.Lead != nil {
		vars["name"] = in.Lead.Name
		vars["first_name"] = firstName(in.Lead.Name)
	}
	if in.OwnerName != "" {
		vars["owner_name"] = in.OwnerName
	}

	if in.SiteURL != "" {
		link := strings.TrimSuffix(in.SiteURL, "/") + in.BookingPath
		if in.Opportunity != nil {
			link += "?opportunity=" + in.Opportunity.ID.String()
		}
		vars["booking_link"] = link
	}

	if in.Opportunity != nil {
		if in.Opportunity.ProjectType != "" {
			vars["project_type"] = in.Opportunity.ProjectType
		}
		if in.Opportunity.ValueEstimate > 0 {
			vars["amount"] = FormatPounds(domain.DepositPence(in.Opportunity.ValueEstimate))
		}
	}

	if in.Booking != nil {
		vars["date"] = in.Booking.ScheduledAt.Format("Mon 2 Jan")
		vars["time"] = in.Booking.ScheduledAt.Format("15:04")
		if vars["meet_link"] == "" {
			vars["meet_link"] = in.Booking.MeetLink
		}
	}

	return vars
}

func firstName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		return name[:idx]
	}
	return name
}

// FormatPounds renders a pence amount as whole pounds with thousands
// separators, e.g. 150000 pence -> "1,500".
func FormatPounds(pence int64) string {
	pounds := strconv.FormatInt(pence/100, 10)

	negative := strings.HasPrefix(pounds, "-")
	digits := strings.TrimPrefix(pounds, "-")
	if len(digits) <= 3 {
		return pounds
	}

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 && !(negative && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{key}} placeholders. A key that is missing or
// resolved to an empty value is left as the literal placeholder, so a
// rendering gap stays visible instead of silently disappearing.
func Render(text string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[key]; ok && value != "" {
			return value
		}
		return match
	})
}
