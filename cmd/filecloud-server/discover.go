package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/filecloud/internal/discovery"
)

var scanTimeout int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find filecloud servers on the local network",
	Long: `Browse mDNS for servers started with --mdns and list their addresses.`,
	Example: `  filecloud-server discover --timeout 10`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", int(discovery.DefaultScanTimeout/time.Second), "Scan timeout in seconds")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for filecloud servers (timeout: %ds)...\n\n", scanTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanTimeout) * time.Second

	servers, err := scanner.Scan(context.Background())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(servers) == 0 {
		fmt.Println("No servers found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Start the server with --mdns")
		fmt.Println("  - Make sure both hosts are on the same network segment")
		fmt.Println("  - Check that UDP port 5353 is not blocked")
		return nil
	}

	fmt.Printf("Found %d server(s):\n\n", len(servers))
	for i, s := range servers {
		fmt.Printf("%d. %s\n", i+1, s.Instance)
		fmt.Printf("   Address: %s\n", s.Address())
		fmt.Printf("   Host:    %s\n", s.Hostname)
		if v := s.GetMetadata("version"); v != "" {
			fmt.Printf("   Version: %s\n", v)
		}
		fmt.Println()
	}
	return nil
}
