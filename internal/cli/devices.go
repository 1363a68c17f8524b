package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cinder-ml/cinder/internal/device"
)

// DeviceInfo is the JSON form of one catalog entry.
type DeviceInfo struct {
	Name             string `json:"name"`
	Generation       int    `json:"generation"`
	LowPrecisionConv bool   `json:"low_precision_conv"`
	FusedConv        bool   `json:"fused_conv"`
	FusedAttention   bool   `json:"fused_attention"`
}

// NewDevicesCommand creates the devices command.
func NewDevicesCommand(rootOpts *RootOptions) *cobra.Command {
	var catalogFiles []string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the device catalog",
		Long: `List every device the compiler can target, with its generation
and feature set. Extra CUE catalog files merge with the built-in catalog.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(rootOpts, catalogFiles, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&catalogFiles, "catalog", nil, "extra CUE catalog files to merge")

	return cmd
}

func runDevices(opts *RootOptions, catalogFiles []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	catalog, err := device.LoadCatalog(catalogFiles...)
	if err != nil {
		_ = formatter.Error(ErrCodeDevice, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading device catalog", err)
	}

	var infos []DeviceInfo
	for _, name := range catalog.Names() {
		capability, _ := catalog.Lookup(name)
		infos = append(infos, DeviceInfo{
			Name:             capability.Name,
			Generation:       capability.Generation,
			LowPrecisionConv: capability.LowPrecisionConv,
			FusedConv:        capability.FusedConv,
			FusedAttention:   capability.FusedAttention,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(infos)
	}

	for _, info := range infos {
		fmt.Fprintf(formatter.Writer, "%-8s gen%-3d", info.Name, info.Generation)
		if info.LowPrecisionConv {
			fmt.Fprint(formatter.Writer, " low-precision-conv")
		}
		if info.FusedConv {
			fmt.Fprint(formatter.Writer, " fused-conv")
		}
		if info.FusedAttention {
			fmt.Fprint(formatter.Writer, " fused-attention")
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
