package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var userName string

// userCmd represents the user command group
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

// userCreateCmd represents the user create command
var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Long: `Create a user via the users service. The service also queues the
user.created event that drives the welcome notification.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if userName == "" {
			return fmt.Errorf("--name is required")
		}

		body, err := json.Marshal(map[string]string{"name": userName})
		if err != nil {
			return err
		}

		resp, err := httpClient().Post(serviceURL("/v1/users"), "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create user request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("create user failed (HTTP %d): %s", resp.StatusCode, bytes.TrimSpace(respBody))
		}

		var created map[string]interface{}
		if err := json.Unmarshal(respBody, &created); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		printOutput(created)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userName, "name", "", "user name (3-50 characters)")
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}
