package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wonny/intent/internal/intentconfig"
	"github.com/wonny/intent/pkg/config"
)

// policyCmd inspects the scoring/polling policy
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "정책(YAML) 검증 및 출력",
}

var (
	policyCheckCmd = &cobra.Command{
		Use:   "check [file]",
		Short: "정책 파일 검증 (default: --policy 또는 내장 정책)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  checkPolicy,
	}

	policyShowCmd = &cobra.Command{
		Use:   "show",
		Short: "적용될 정책 출력",
		RunE:  showPolicy,
	}
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyCheckCmd)
	policyCmd.AddCommand(policyShowCmd)
}

func resolvePolicyPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if policyFile != "" {
		return policyFile, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.PolicyPath, nil
}

func checkPolicy(cmd *cobra.Command, args []string) error {
	path, err := resolvePolicyPath(args)
	if err != nil {
		return err
	}
	p, err := intentconfig.LoadOrDefault(path)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	hash, err := intentconfig.Hash(p)
	if err != nil {
		return err
	}

	if path == "" {
		path = "(embedded default)"
	}
	PrintSuccess("Policy is valid: " + path)
	PrintKeyValue("Policy", fmt.Sprintf("%s v%s", p.Meta.PolicyID, p.Meta.Version), 10)
	PrintKeyValue("Hash", hash[:12], 10)
	PrintKeyValue("Sources", fmt.Sprint(p.EnabledSources()), 10)
	PrintKeyValue("Tiers", fmt.Sprintf("high>=%.0f medium>=%.0f", p.Tiers.High, p.Tiers.Medium), 10)
	return nil
}

func showPolicy(cmd *cobra.Command, args []string) error {
	path, err := resolvePolicyPath(nil)
	if err != nil {
		return err
	}
	p, err := intentconfig.LoadOrDefault(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(p)
}
