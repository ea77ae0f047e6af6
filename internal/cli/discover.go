package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tessro/nstream/internal/upnp"
)

var discoverTimeout int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover media renderers on the network",
	Long:  `Sends an SSDP search and lists the media renderers that answer.`,
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 3, "search timeout in seconds")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	found, err := upnp.Discover(ctx, time.Duration(discoverTimeout)*time.Second)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(found)
	}

	if len(found) == 0 {
		fmt.Println("No media renderers found")
		return nil
	}
	for _, f := range found {
		fmt.Printf("%s\t%s\n", f.IP, f.Server)
		if Verbose() {
			fmt.Printf("  uuid:     %s\n", f.UUID)
			fmt.Printf("  location: %s\n", f.Location)
		}
	}
	return nil
}
