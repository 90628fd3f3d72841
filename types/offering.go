package types

// Offering is a product or plan the agent can present.
type Offering struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Benefits    []string `json:"benefits" yaml:"benefits"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Price       float64  `json:"price" yaml:"price"`
	PriceInfo   string   `json:"price_info" yaml:"price_info"`
}

// KeyBenefit returns the headline benefit, falling back to the description.
func (o Offering) KeyBenefit() string {
	if len(o.Benefits) > 0 {
		return o.Benefits[0]
	}
	return o.Description
}
