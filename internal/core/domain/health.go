package domain

// ComponentHealth is the outcome of probing one external dependency.
type ComponentHealth struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}
