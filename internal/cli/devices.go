package cli

import (
	"fmt"

	"github.com/petems/nexara-tray/internal/config"
	"github.com/petems/nexara-tray/internal/media"
	"github.com/spf13/cobra"
)

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	var selectDevice string
	var systemDevice string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Long: "Lists the audio inputs. --select saves the microphone to record from;\n" +
			"--system saves the loopback input used for system audio (BlackHole, a PulseAudio monitor, ...).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := stdout()

			rt, err := deps.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			devices, err := rt.Acquirer.Initialize(cmd.Context())
			if err != nil {
				f.Warning(fmt.Sprintf("Microphone unavailable, device names may be missing: %v", err))
				if devices, err = rt.Acquirer.EnumerateInputDevices(); err != nil {
					return err
				}
			}

			if selectDevice != "" || systemDevice != "" {
				for _, name := range []string{selectDevice, systemDevice} {
					if name != "" && !hasDevice(devices, name) {
						return fmt.Errorf("%w: %s", media.ErrDeviceNotFound, name)
					}
				}
				err := deps.Store.Update(func(s *config.Settings) {
					if selectDevice != "" {
						s.Audio.DeviceID = selectDevice
					}
					if systemDevice != "" {
						s.Audio.SystemAudioDevice = systemDevice
					}
				})
				if err != nil {
					return err
				}
				f.Success("Saved audio device settings")
			}

			current := deps.Store.Snapshot().Audio
			f.DeviceListHeader()
			for _, d := range devices {
				label := d.Label
				if label == "" {
					label = "(name hidden until microphone access is granted)"
				}
				selected := d.ID == current.DeviceID || (current.DeviceID == "" && d.Default)
				f.DeviceListItem(d.ID, label, d.Default, selected)
			}
			if current.SystemAudioDevice != "" {
				f.Info("System audio: " + current.SystemAudioDevice)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&selectDevice, "select", "", "Save this device as the microphone")
	cmd.Flags().StringVar(&systemDevice, "system", "", "Save this device as the system audio source")

	return cmd
}

func hasDevice(devices []media.Device, id string) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}
