package banner

import (
	"fmt"

	"branchdb/pkg/config"
)

const banner = `
██████╗ ██████╗  █████╗ ███╗   ██╗ ██████╗██╗  ██╗██████╗ ██████╗
██╔══██╗██╔══██╗██╔══██╗████╗  ██║██╔════╝██║  ██║██╔══██╗██╔══██╗
██████╔╝██████╔╝███████║██╔██╗ ██║██║     ███████║██║  ██║██████╔╝
██╔══██╗██╔══██╗██╔══██║██║╚██╗██║██║     ██╔══██║██║  ██║██╔══██╗
██████╔╝██║  ██║██║  ██║██║ ╚████║╚██████╗██║  ██║██████╔╝██████╔╝
╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝ ╚═════╝╚═╝  ╚═╝╚═════╝ ╚═════╝
`

// Print displays startup context from the effective config.
func Print(eff config.EffectiveConfigResult, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Ops listen: %s\n", eff.Addr)
	fmt.Printf("Log dir:    %s\n", eff.LogDir)
	fmt.Printf("Blob path:  %s\n", eff.Config.Storage.BlobPath)
	if version != "" {
		fmt.Printf("Version:    %s\n", version)
	}
	fmt.Printf("Config:     %s\n", eff.Source)

	if eff.Config.Maintenance.Enabled {
		cron := eff.Config.Maintenance.Cron
		if cron == "" {
			cron = "0 3 * * *"
		}
		fmt.Printf("Compaction: enabled (cron=%s)\n", cron)
	} else {
		fmt.Println("Compaction: disabled")
	}
	fmt.Println()
}
