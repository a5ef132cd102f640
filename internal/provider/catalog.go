package provider

// Service is a purchasable SMS target application.
type Service struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	BaseCost int64  `json:"base_cost"` // cents, before markup
}

// Country is a supported origin country for numbers.
type Country struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Services users can order numbers for. Base costs are the typical pool
// price and are replaced by the actual provider cost at purchase time.
var Services = []Service{
	{ID: 1574, Name: "Ring4", BaseCost: 25},
	{ID: 22, Name: "Telegram", BaseCost: 45},
	{ID: 395, Name: "WhatsApp", BaseCost: 60},
	{ID: 365, Name: "Google", BaseCost: 35},
	{ID: 662, Name: "Discord", BaseCost: 30},
	{ID: 1059, Name: "Tinder", BaseCost: 55},
}

var Countries = []Country{
	{ID: 1, Name: "United States", Code: "US"},
	{ID: 2, Name: "United Kingdom", Code: "GB"},
	{ID: 3, Name: "Netherlands", Code: "NL"},
	{ID: 13, Name: "Canada", Code: "CA"},
	{ID: 16, Name: "France", Code: "FR"},
	{ID: 43, Name: "Germany", Code: "DE"},
}

// ServiceByID returns the catalog entry, or nil when unknown.
func ServiceByID(id int) *Service {
	for i := range Services {
		if Services[i].ID == id {
			return &Services[i]
		}
	}
	return nil
}

// CountryByID returns the catalog entry, or nil when unknown.
func CountryByID(id int) *Country {
	for i := range Countries {
		if Countries[i].ID == id {
			return &Countries[i]
		}
	}
	return nil
}

// Quote applies the configured markup to a base cost, rounding up so the
// house never undercharges by a cent.
func Quote(baseCost int64, markupPct int64) int64 {
	if markupPct <= 0 {
		return baseCost
	}
	marked := baseCost * (100 + markupPct)
	quoted := marked / 100
	if marked%100 != 0 {
		quoted++
	}
	return quoted
}
