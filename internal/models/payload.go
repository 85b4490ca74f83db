package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var payloadValidator = validator.New()

// PayloadField is one labelled line rendered into the authorization body.
type PayloadField struct {
	Label string
	Value string
}

// Payload is the type-specific body of a request.
type Payload interface {
	Kind() DemandeType
	Applicant() string
	Fields() []PayloadField
}

// ProductionPayload describes a production unit installation.
type ProductionPayload struct {
	CompanyName          string  `json:"company_name" validate:"required,max=200"`
	Product              string  `json:"product" validate:"required,max=200"`
	SiteAddress          string  `json:"site_address" validate:"required,max=500"`
	Region               string  `json:"region" validate:"required,max=120"`
	AnnualCapacityTonnes float64 `json:"annual_capacity_tonnes" validate:"required,gt=0"`
	Workforce            int     `json:"workforce" validate:"gte=0"`
}

// Kind implements Payload.
func (p ProductionPayload) Kind() DemandeType { return DemandeTypeProduction }

// Applicant implements Payload.
func (p ProductionPayload) Applicant() string { return p.CompanyName }

// Fields implements Payload.
func (p ProductionPayload) Fields() []PayloadField {
	return []PayloadField{
		{Label: "Company", Value: p.CompanyName},
		{Label: "Product", Value: p.Product},
		{Label: "Site", Value: p.SiteAddress},
		{Label: "Region", Value: p.Region},
		{Label: "Annual capacity", Value: formatQuantity(p.AnnualCapacityTonnes, "tonnes")},
		{Label: "Workforce", Value: strconv.Itoa(p.Workforce)},
	}
}

// StoragePayload describes a storage depot installation.
type StoragePayload struct {
	CompanyName         string  `json:"company_name" validate:"required,max=200"`
	Product             string  `json:"product" validate:"required,max=200"`
	SiteAddress         string  `json:"site_address" validate:"required,max=500"`
	Region              string  `json:"region" validate:"required,max=120"`
	CapacityCubicMeters float64 `json:"capacity_cubic_meters" validate:"required,gt=0"`
	HazardousMaterials  bool    `json:"hazardous_materials"`
}

// Kind implements Payload.
func (p StoragePayload) Kind() DemandeType { return DemandeTypeStorage }

// Applicant implements Payload.
func (p StoragePayload) Applicant() string { return p.CompanyName }

// Fields implements Payload.
func (p StoragePayload) Fields() []PayloadField {
	hazardous := "no"
	if p.HazardousMaterials {
		hazardous = "yes"
	}
	return []PayloadField{
		{Label: "Company", Value: p.CompanyName},
		{Label: "Stored product", Value: p.Product},
		{Label: "Site", Value: p.SiteAddress},
		{Label: "Region", Value: p.Region},
		{Label: "Storage capacity", Value: formatQuantity(p.CapacityCubicMeters, "m3")},
		{Label: "Hazardous materials", Value: hazardous},
	}
}

// ProcessingPayload describes a processing plant installation.
type ProcessingPayload struct {
	CompanyName           string  `json:"company_name" validate:"required,max=200"`
	RawMaterial           string  `json:"raw_material" validate:"required,max=200"`
	OutputProduct         string  `json:"output_product" validate:"required,max=200"`
	SiteAddress           string  `json:"site_address" validate:"required,max=500"`
	Region                string  `json:"region" validate:"required,max=120"`
	DailyThroughputTonnes float64 `json:"daily_throughput_tonnes" validate:"required,gt=0"`
}

// Kind implements Payload.
func (p ProcessingPayload) Kind() DemandeType { return DemandeTypeProcessing }

// Applicant implements Payload.
func (p ProcessingPayload) Applicant() string { return p.CompanyName }

// Fields implements Payload.
func (p ProcessingPayload) Fields() []PayloadField {
	return []PayloadField{
		{Label: "Company", Value: p.CompanyName},
		{Label: "Raw material", Value: p.RawMaterial},
		{Label: "Output product", Value: p.OutputProduct},
		{Label: "Site", Value: p.SiteAddress},
		{Label: "Region", Value: p.Region},
		{Label: "Daily throughput", Value: formatQuantity(p.DailyThroughputTonnes, "tonnes")},
	}
}

// DecodePayload picks the variant for t, rejects unknown fields and validates it.
func DecodePayload(t DemandeType, raw json.RawMessage) (Payload, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("payload is required")
	}
	var target Payload
	switch t {
	case DemandeTypeProduction:
		p := ProductionPayload{}
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case DemandeTypeStorage:
		p := StoragePayload{}
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case DemandeTypeProcessing:
		p := ProcessingPayload{}
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		target = p
	default:
		return nil, fmt.Errorf("unknown request type %q", t)
	}
	if err := payloadValidator.Struct(target); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", t.Label(), err)
	}
	return target, nil
}

func strictUnmarshal(raw json.RawMessage, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func formatQuantity(v float64, unit string) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + unit
}
