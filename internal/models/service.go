package models

type Service struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Letter string `json:"letter" yaml:"letter" validate:"omitempty,len=1,alpha"`
}
