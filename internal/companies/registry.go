package companies

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"golang.org/x/net/publicsuffix"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/pkg/logger"
)

// Registry owns the set of tracked companies
// ⭐ SSOT: company ids are canonicalized here and nowhere else
type Registry struct {
	store      contracts.CompanyStore
	validate   *validator.Validate
	translator ut.Translator
	logger     *logger.Logger
}

// NewRegistry creates a registry on top of a CompanyStore
func NewRegistry(store contracts.CompanyStore, log *logger.Logger) *Registry {
	enLoc := en.New()
	uni := ut.New(enLoc, enLoc)
	trans, _ := uni.GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	return &Registry{
		store:      store,
		validate:   v,
		translator: trans,
		logger:     log.WithModule("companies"),
	}
}

// CanonicalDomain reduces a URL, host or domain to its registrable domain:
// "https://WWW.Shop.Acme.co.uk:443/x" → "acme.co.uk".
func CanonicalDomain(raw string) (string, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return "", fmt.Errorf("empty domain: %w", contracts.ErrInvalid)
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, contracts.ErrInvalid)
	}

	host := u.Hostname()
	host = strings.TrimSuffix(host, ".")
	if host == "" || net.ParseIP(host) != nil {
		return "", fmt.Errorf("%q is not a domain: %w", raw, contracts.ErrInvalid)
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("%q has no registrable domain: %w", raw, contracts.ErrInvalid)
	}
	return registrable, nil
}

// Normalize canonicalizes and validates a company
func (r *Registry) Normalize(company contracts.Company) (contracts.Company, error) {
	id, err := CanonicalDomain(company.ID)
	if err != nil {
		return contracts.Company{}, err
	}
	company.ID = id
	company.Name = strings.TrimSpace(company.Name)
	if company.Name == "" {
		company.Name = id
	}

	if err := r.validate.Struct(company); err != nil {
		return contracts.Company{}, r.validationError(err)
	}
	return company, nil
}

// Add registers or updates a company and returns the stored form
func (r *Registry) Add(ctx context.Context, company contracts.Company) (contracts.Company, error) {
	company, err := r.Normalize(company)
	if err != nil {
		return contracts.Company{}, err
	}
	if err := r.store.Save(ctx, company); err != nil {
		return contracts.Company{}, fmt.Errorf("save company %s: %w", company.ID, err)
	}

	r.logger.WithField("company_id", company.ID).Info("Company registered")
	return company, nil
}

// Get looks a company up by any form of its domain
func (r *Registry) Get(ctx context.Context, idOrURL string) (contracts.Company, error) {
	id, err := CanonicalDomain(idOrURL)
	if err != nil {
		return contracts.Company{}, err
	}
	return r.store.Get(ctx, id)
}

// List returns every company ordered by id
func (r *Registry) List(ctx context.Context) ([]contracts.Company, error) {
	list, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Remove stops tracking a company. Its signals are kept.
func (r *Registry) Remove(ctx context.Context, idOrURL string) error {
	id, err := CanonicalDomain(idOrURL)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.WithField("company_id", id).Info("Company removed")
	return nil
}

// ValidationError lists field problems in readable form
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "invalid company: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, contracts.ErrInvalid) hold
func (e *ValidationError) Is(target error) bool {
	return target == contracts.ErrInvalid
}

func (r *Registry) validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate company: %w", err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = fe.Translate(r.translator)
	}
	return out
}
