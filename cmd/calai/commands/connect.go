package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calai/calai-go/internal/google"
)

// NewConnectCmd constructs the `calai connect` command, which runs the
// Google Calendar OAuth flow in the terminal.
func NewConnectCmd() *cobra.Command {
	var authDir string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect calai to your Google Calendar",
		Long: `Run the Google Calendar OAuth flow.

Place your OAuth client credentials at <auth-dir>/credentials.json first
(download them from the Google Cloud console). The command prints an
authorization URL to open in a browser, then prompts for the code Google
returns. The resulting token is stored at <auth-dir>/token.json.

Examples:
  calai connect
  calai connect --auth-dir ./secrets`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := authDir
			if dir == "" {
				dir = envOrDefault("CALENDAR_AUTH_DIR", defaultCalaiPath(""))
			}
			auth := google.NewAuth(dir)

			st := auth.Status()
			if !st.HasCredentials {
				return fmt.Errorf("connect: no credentials.json in %s — download OAuth client credentials from the Google Cloud console first", dir)
			}
			if st.HasToken {
				fmt.Println("already connected — delete token.json to re-authorize")
				return nil
			}

			url, err := auth.AuthURL()
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			fmt.Printf("Open this URL in a browser and authorize access:\n\n  %s\n\nPaste the authorization code: ", url)

			reader := bufio.NewReader(os.Stdin)
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("connect: reading code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("connect: empty authorization code")
			}

			if err := auth.Exchange(cmd.Context(), code); err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			fmt.Println("calendar connected")
			return nil
		},
	}

	cmd.Flags().StringVar(&authDir, "auth-dir", "", "Directory holding credentials.json and token.json (default: $CALENDAR_AUTH_DIR or ~/.calai)")

	return cmd
}
