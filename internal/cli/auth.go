package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/docdr/internal/auth"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the service account key",
	Long: `Store the service account key docdr authenticates with.

The service account needs domain-wide delegation for the Drive, Drive
Activity and Admin Directory read-only scopes, and write access to the
destination bucket.`,
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key <key-file>",
	Short: "Store a service account key under the profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthSetKey,
}

var authRemoveKeyCmd = &cobra.Command{
	Use:   "remove-key",
	Short: "Remove the key stored under the profile",
	RunE:  runAuthRemoveKey,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored key profiles",
	RunE:  runAuthList,
}

func init() {
	authCmd.AddCommand(authSetKeyCmd)
	authCmd.AddCommand(authRemoveKeyCmd)
	authCmd.AddCommand(authListCmd)
	rootCmd.AddCommand(authCmd)
}

// KeyInfo describes a stored key without its secret
type KeyInfo struct {
	Profile     string `json:"profile"`
	ClientEmail string `json:"clientEmail,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	Storage     string `json:"storage"`
}

func runAuthSetKey(cmd *cobra.Command, args []string) error {
	out := newOutput(cmd)
	mgr, err := authManager()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
			WithContext("file", args[0]).Build(), err)
	}
	key, err := mgr.SaveKey(cfg.CredentialProfile, data)
	if err != nil {
		return err
	}
	if warning := mgr.GetStorageWarning(); warning != "" {
		out.AddWarning("KEY_STORAGE", warning, "warning")
	}
	return out.WriteSuccess("auth.set-key", KeyInfo{
		Profile:     cfg.CredentialProfile,
		ClientEmail: key.ClientEmail,
		ProjectID:   key.ProjectID,
		Storage:     mgr.GetStorageBackend(),
	})
}

func runAuthRemoveKey(cmd *cobra.Command, args []string) error {
	mgr, err := authManager()
	if err != nil {
		return err
	}
	if err := mgr.DeleteKey(cfg.CredentialProfile); err != nil {
		return err
	}
	return newOutput(cmd).WriteSuccess("auth.remove-key", map[string]string{
		"profile": cfg.CredentialProfile,
		"status":  "removed",
	})
}

func runAuthList(cmd *cobra.Command, args []string) error {
	mgr, err := authManager()
	if err != nil {
		return err
	}
	profiles, err := mgr.ListProfiles()
	if err != nil {
		return err
	}

	infos := make([]KeyInfo, 0, len(profiles))
	for _, p := range profiles {
		info := KeyInfo{Profile: p, Storage: mgr.GetStorageBackend()}
		if data, err := mgr.ResolveKey("", p); err == nil {
			if key, err := auth.ParseServiceAccountKey(data); err == nil {
				info.ClientEmail = key.ClientEmail
				info.ProjectID = key.ProjectID
			}
		}
		infos = append(infos, info)
	}
	return newOutput(cmd).WriteSuccess("auth.list", keyList(infos))
}

type keyList []KeyInfo

func (l keyList) AsTableRenderer() types.TableRenderer {
	rows := make([][]string, 0, len(l))
	for _, k := range l {
		rows = append(rows, []string{k.Profile, k.ClientEmail, k.ProjectID, k.Storage})
	}
	return &table{
		headers: []string{"Profile", "Service account", "Project", "Storage"},
		rows:    rows,
		empty:   "No keys stored. Run 'docdr auth set-key <key-file>'.",
	}
}
