package service

import (
	"strconv"
	"strings"

	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

// ResponseTemplate is the section layout the narrative must follow
type ResponseTemplate struct {
	Name     string
	Sections []string
}

const (
	sectionBestLocations = "Best Locations"
	sectionPriceAnalysis = "Price Analysis"
	sectionAffordability = "Affordability"
	sectionNextSteps     = "Next Steps"
	sectionGuidance      = "General Guidance"
)

func newTemplate(sections ...string) ResponseTemplate {
	return ResponseTemplate{Name: strings.Join(sections, " + "), Sections: sections}
}

// templateKey is (recommendations, predictions, affordability) presence
type templateKey struct {
	recommendations bool
	predictions     bool
	affordability   bool
}

// responseTemplates covers all eight presence combinations with six layouts.
// Affordability is only ever derived from a prediction, so without
// predictions it adds no section of its own.
var responseTemplates = map[templateKey]ResponseTemplate{
	{true, true, true}:    newTemplate(sectionBestLocations, sectionPriceAnalysis, sectionAffordability, sectionNextSteps),
	{true, true, false}:   newTemplate(sectionBestLocations, sectionPriceAnalysis, sectionNextSteps),
	{true, false, true}:   newTemplate(sectionBestLocations, sectionNextSteps),
	{true, false, false}:  newTemplate(sectionBestLocations, sectionNextSteps),
	{false, true, true}:   newTemplate(sectionPriceAnalysis, sectionAffordability, sectionNextSteps),
	{false, true, false}:  newTemplate(sectionPriceAnalysis, sectionNextSteps),
	{false, false, true}:  newTemplate(sectionGuidance, sectionNextSteps),
	{false, false, false}: newTemplate(sectionGuidance, sectionNextSteps),
}

// sectionGuides tells the model what each section should contain
var sectionGuides = map[string]string{
	sectionBestLocations: "Present the recommended towns in the given order as a ranked list. Mention recent and total transaction counts and the average price. Explain that fewer recent transactions suggests less competition.",
	sectionPriceAnalysis: "For each valuation, state the flat type, town, floor level and area with the open-market resale estimate and the BTO price after discount. If a valuation failed, say which one and why, in plain language.",
	sectionAffordability: "For each priced flat, give the estimated monthly payment, the household income required, and the income bracket.",
	sectionNextSteps:     "Close with two to four concrete, practical next steps for the buyer.",
	sectionGuidance:      "Answer the question using general knowledge of the Singapore HDB market and explain what extra details (town, flat type, size) would allow a price estimate.",
}

// SelectTemplate picks the layout for a bundle by looking up its presence triple
func SelectTemplate(b *model.ResultBundle) ResponseTemplate {
	return responseTemplates[templateKey{
		recommendations: b.HasRecommendations(),
		predictions:     b.HasPredictions(),
		affordability:   b.HasAffordability(),
	}]
}

// Instructions renders the template as numbered sections for the system prompt
func (t ResponseTemplate) Instructions() string {
	var sb strings.Builder
	sb.WriteString("Structure your answer with these sections, in order, each under a markdown heading:\n")
	for i, section := range t.Sections {
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(section)
		sb.WriteString(": ")
		sb.WriteString(sectionGuides[section])
		sb.WriteString("\n")
	}
	return sb.String()
}
