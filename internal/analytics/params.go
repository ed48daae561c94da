package analytics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Params are the shared inputs of every report.
type Params struct {
	TenantID  string `json:"tenantId" validate:"required,max=64,scopeid"`
	BranchID  string `json:"branchId,omitempty" validate:"omitempty,max=64,scopeid"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Interval  string `json:"interval,omitempty" validate:"omitempty,oneof=day week month year auto"`
}

// Scope returns the tenant/branch pair of the request.
func (p Params) Scope() Scope {
	return Scope{TenantID: p.TenantID, BranchID: p.BranchID}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func paramsValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Scope ids end up inside cache keys and SCAN patterns.
		_ = validate.RegisterValidation("scopeid", func(fl validator.FieldLevel) bool {
			return !strings.ContainsAny(fl.Field().String(), "*?[]:\\ ")
		})
	})
	return validate
}

// Validate checks the parameters without touching the record store.
func (p Params) Validate() error {
	if strings.TrimSpace(p.TenantID) == "" {
		return ErrMissingTenant
	}
	if err := paramsValidator().Struct(p); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %s", ErrInvalidParams, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// request is a validated report invocation.
type request struct {
	params Params
	scope  Scope
	window Window
}

func (s *Service) resolve(p Params) (request, error) {
	if err := p.Validate(); err != nil {
		return request{}, err
	}
	window, err := ResolveWindow(p.StartDate, p.EndDate, s.now(), s.loc)
	if err != nil {
		return request{}, err
	}
	return request{params: p, scope: p.Scope(), window: window}, nil
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}
