package catalog

import (
	"errors"
	"fmt"
	"strings"

	"qsmart/booking-service/internal/models"
)

// UnmappedLetter prefixes queue codes for services without a letter.
const UnmappedLetter = "X"

var DefaultServices = []models.Service{
	{Name: "Account Opening", Letter: "A"},
	{Name: "Loan Application", Letter: "B"},
	{Name: "Credit Card Services", Letter: "C"},
	{Name: "Customer Support & Inquiries", Letter: "D"},
	{Name: "Fixed Deposit Consultation", Letter: "E"},
}

type Catalog struct {
	services []models.Service
	byName   map[string]models.Service
}

func New(services []models.Service) (*Catalog, error) {
	if len(services) == 0 {
		return nil, errors.New("catalog needs at least one service")
	}
	c := &Catalog{byName: make(map[string]models.Service, len(services))}
	for _, svc := range services {
		svc.Name = strings.TrimSpace(svc.Name)
		svc.Letter = strings.ToUpper(strings.TrimSpace(svc.Letter))
		if svc.Name == "" {
			return nil, errors.New("service name is required")
		}
		if _, exists := c.byName[svc.Name]; exists {
			return nil, fmt.Errorf("duplicate service %q", svc.Name)
		}
		c.byName[svc.Name] = svc
		c.services = append(c.services, svc)
	}
	return c, nil
}

func Default() *Catalog {
	c, err := New(DefaultServices)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Valid(name string) bool {
	_, ok := c.byName[name]
	return ok
}

func (c *Catalog) Letter(name string) string {
	if svc, ok := c.byName[name]; ok && svc.Letter != "" {
		return svc.Letter
	}
	return UnmappedLetter
}

func (c *Catalog) Services() []models.Service {
	out := make([]models.Service, len(c.services))
	copy(out, c.services)
	return out
}
