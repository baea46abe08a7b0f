package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lumenwork/permissions"
	"github.com/lumenwork/permissions/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "check":
		handleCheck()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("permissions-config - Configuration tool for the permissions engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  permissions-config convert <input> <output>          - Convert between formats")
	fmt.Println("  permissions-config validate <file>                   - Validate configuration")
	fmt.Println("  permissions-config stats <file>                      - Show configuration statistics")
	fmt.Println("  permissions-config check <file> <user> <feature> [action] - Evaluate a request against the config")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permissions-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permissions-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Role assignments: %d\n", len(cfg.RoleAssignments))
	fmt.Printf("  Attribute records: %d\n", len(cfg.Attributes))
	fmt.Printf("  Policies: %d\n", len(cfg.Policies))
	fmt.Printf("  Policy role bindings: %d\n", len(cfg.PolicyRoles))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permissions-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Role assignments:     %d\n", len(cfg.RoleAssignments))
	fmt.Printf("  Attribute records:    %d\n", len(cfg.Attributes))
	fmt.Printf("  Policies:             %d\n", len(cfg.Policies))
	fmt.Printf("  Policy role bindings: %d\n", len(cfg.PolicyRoles))
	fmt.Println()

	if len(cfg.Policies) > 0 {
		totalConds := 0
		unconditional := 0
		features := map[string]bool{}
		for _, p := range cfg.Policies {
			totalConds += len(p.Conditions)
			if len(p.Conditions) == 0 {
				unconditional++
			}
			features[p.Feature] = true
		}
		fmt.Println("Policy Details:")
		fmt.Printf("  Distinct features:        %d\n", len(features))
		fmt.Printf("  Unconditional policies:   %d\n", unconditional)
		fmt.Printf("  Total conditions:         %d\n", totalConds)
		fmt.Printf("  Avg conditions per policy: %.1f\n", float64(totalConds)/float64(len(cfg.Policies)))
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Decision cache TTL:  %dms\n", cfg.Engine.CacheTTLMillis)
	fmt.Printf("  Cache max entries:   %d\n", cfg.Engine.CacheMaxEntries)
	fmt.Printf("  Super admin role:    %s\n", cfg.Engine.SuperAdminRole)
	fmt.Printf("  Audit buffer size:   %d\n", cfg.Engine.AuditBufferSize)
}

func handleCheck() {
	if len(os.Args) < 5 {
		fmt.Println("Usage: permissions-config check <file> <user> <feature> [action]")
		os.Exit(1)
	}

	filename := os.Args[2]
	userID := os.Args[3]
	feature := os.Args[4]
	action := permissions.DefaultAction
	if len(os.Args) > 5 {
		action = os.Args[5]
	}

	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, err := permissions.NewEngine(
		stores.NewMemoryRoleAttributeStore(),
		stores.NewMemoryPolicyStore(),
		cfg.Engine.Options()...,
	)
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	dec := engine.Explain(ctx, userID, feature, action, nil)
	fmt.Printf("Allowed: %v\n", dec.Allowed)
	fmt.Printf("Reason:  %s\n", dec.Reason)
	if len(dec.MatchedPolicies) > 0 {
		fmt.Printf("Matched: %s\n", strings.Join(dec.MatchedPolicies, ", "))
	}
	if len(dec.FailedConditions) > 0 {
		fmt.Printf("Failed conditions:\n")
		for _, c := range dec.FailedConditions {
			fmt.Printf("  %s\n", c)
		}
	}
	for _, line := range dec.Trace {
		fmt.Printf("  trace: %s\n", line)
	}
}

func loadConfig(filename string) (*permissions.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	loader := permissions.NewConfigLoader()

	switch ext {
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *permissions.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
