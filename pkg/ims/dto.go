package ims

import (
	"encoding/json"
	"time"
)

const (
	loginPath   = "/api/account/login"
	podsPath    = "/api/consumption-production/profile-data/get-points-of-delivery"
	profilePath = "/api/consumption-production/profile-data"
	chartPath   = "/api/consumption-production/profile-data/chart-data"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// podEntry is one element of the discovery response. Value is a
// session-scoped id that changes on every login; the stable point code
// is embedded in Text.
type podEntry struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

type profileDataRequest struct {
	PointOfDeliveryID string `json:"pointOfDeliveryId"`
	ValidFromDate     string `json:"validFromDate"`
	ValidToDate       string `json:"validToDate"`
}

type chartDataRequest struct {
	PointOfDeliveryID   string `json:"pointOfDeliveryId"`
	ValidFromDate       string `json:"validFromDate"`
	ValidToDate         string `json:"validToDate"`
	PointOfDeliveryText string `json:"pointOfDeliveryText"`
}

type profileDataResponse struct {
	Columns []json.RawMessage `json:"columns"`
	Rows    []profileDataRow  `json:"rows"`
}

type profileDataRow struct {
	Values []json.RawMessage `json:"values"`
}

// ProfileRow is one 15-minute interval reading. Nil metric values mean
// the portal had no reading for that interval.
type ProfileRow struct {
	Time                time.Time `json:"time"`
	Period              int       `json:"period"`
	ActiveConsumption   *float64  `json:"activeConsumption"`
	ActiveSupply        *float64  `json:"activeSupply"`
	ReactiveConsumption *float64  `json:"reactiveConsumption"`
	ReactiveSupply      *float64  `json:"reactiveSupply"`
}
