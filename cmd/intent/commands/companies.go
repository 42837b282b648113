package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/intent/internal/contracts"
)

// companiesCmd manages the tracked company list
var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "추적 회사 관리",
	Long: `추적할 회사를 등록, 조회, 삭제합니다.
회사 ID는 registrable domain 입니다 (https://www.acme.com/x → acme.com).

Example:
  go run ./cmd/intent companies add acme.com --name Acme --industry saas --handle github=acme-inc
  go run ./cmd/intent companies list
  go run ./cmd/intent companies remove acme.com`,
}

var (
	companyName     string
	companyIndustry string
	companySize     string
	companyHandles  []string
)

var (
	companiesAddCmd = &cobra.Command{
		Use:   "add [domain]",
		Short: "회사 등록/수정",
		Args:  cobra.ExactArgs(1),
		RunE:  addCompany,
	}

	companiesListCmd = &cobra.Command{
		Use:   "list",
		Short: "회사 목록",
		RunE:  listCompanies,
	}

	companiesRemoveCmd = &cobra.Command{
		Use:   "remove [domain]",
		Short: "회사 삭제 (signal은 유지)",
		Args:  cobra.ExactArgs(1),
		RunE:  removeCompany,
	}
)

func init() {
	rootCmd.AddCommand(companiesCmd)
	companiesCmd.AddCommand(companiesAddCmd)
	companiesCmd.AddCommand(companiesListCmd)
	companiesCmd.AddCommand(companiesRemoveCmd)

	addCompanyFlags(companiesAddCmd)
}

// addCompanyFlags registers the flags describing a company
func addCompanyFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&companyName, "name", "", "회사 이름 (default: domain)")
	cmd.Flags().StringVar(&companyIndustry, "industry", "", "산업")
	cmd.Flags().StringVar(&companySize, "size", "", "규모 (1-10, 11-50, 51-200, 201-1000, 1001-5000, 5000+)")
	cmd.Flags().StringSliceVar(&companyHandles, "handle", nil, "source handle key=value (github, reddit, greenhouse, homepage)")
}

func companyFromFlags(domain string) (contracts.Company, error) {
	company := contracts.Company{
		ID:         domain,
		Name:       companyName,
		Industry:   companyIndustry,
		SizeBucket: companySize,
	}
	if len(companyHandles) > 0 {
		company.Handles = make(map[string]string, len(companyHandles))
		for _, h := range companyHandles {
			key, value, ok := strings.Cut(h, "=")
			if !ok || key == "" || value == "" {
				return contracts.Company{}, fmt.Errorf("invalid handle %q (expected key=value)", h)
			}
			company.Handles[key] = value
		}
	}
	return company, nil
}

// ensureCompany returns the registered company, registering it from flags when
// it is unknown. The in-memory store starts empty in every process.
func ensureCompany(ctx context.Context, a *app, domain string) (contracts.Company, error) {
	company, err := a.engine.Companies().Get(ctx, domain)
	if err == nil || !errors.Is(err, contracts.ErrNotFound) {
		return company, err
	}

	fromFlags, err := companyFromFlags(domain)
	if err != nil {
		return contracts.Company{}, err
	}
	return a.engine.Companies().Add(ctx, fromFlags)
}

func addCompany(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	company, err := companyFromFlags(args[0])
	if err != nil {
		return err
	}
	stored, err := a.engine.Companies().Add(cmd.Context(), company)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Registered %s (%s)", stored.ID, stored.Name))
	if !a.cfg.UsePostgres() {
		PrintWarning("STORE_BACKEND=memory: the registration ends with this process")
	}
	return nil
}

func listCompanies(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.engine.Companies().List(cmd.Context())
	if err != nil {
		return err
	}

	widths := []int{28, 24, 16, 10}
	PrintTableHeader([]string{"ID", "NAME", "INDUSTRY", "SIZE"}, widths)
	for _, c := range list {
		PrintTableRow([]string{c.ID, truncate(c.Name, 24), c.Industry, c.SizeBucket}, widths)
	}
	fmt.Printf("\n%d companies\n", len(list))
	return nil
}

func removeCompany(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Companies().Remove(cmd.Context(), args[0]); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Removed %s", args[0]))
	return nil
}
