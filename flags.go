package goxl

import (
	"github.com/spf13/pflag"
)

const (
	flagConfig     = "config"
	flagDLL        = "dll"
	flagAppName    = "app"
	flagAppChannel = "app-channel"
	flagBitrate    = "bitrate"
	flagVirtual    = "virtual"
	flagDebug      = "debug"
	flagLogFile    = "log-file"
)

// AddFlags registers the command line overrides for Config on fs.
func AddFlags(fs *pflag.FlagSet) {
	def := DefaultConfig()
	fs.StringP(flagConfig, "c", "", "YAML config file")
	fs.String(flagDLL, def.DLL, "path to the XL Driver Library")
	fs.StringP(flagAppName, "a", def.AppName, "application name in Vector Hardware Config")
	fs.Uint32(flagAppChannel, def.AppChannel, "application channel")
	fs.Uint32P(flagBitrate, "b", def.Bitrate, "CAN bitrate, 0 keeps the current setting")
	fs.Bool(flagVirtual, false, "use the in-process virtual bus instead of the driver")
	fs.BoolP(flagDebug, "d", false, "debug mode")
	fs.String(flagLogFile, "", "also write the log to this file")
}

// ConfigFromFlags loads the config file named by --config and applies every
// flag that was set explicitly on top of it.
func ConfigFromFlags(fs *pflag.FlagSet) (*Config, error) {
	filename, err := fs.GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(filename)
	if err != nil {
		return nil, err
	}
	var ferr error
	fs.Visit(func(f *pflag.Flag) {
		if ferr != nil {
			return
		}
		switch f.Name {
		case flagDLL:
			cfg.DLL, ferr = fs.GetString(f.Name)
		case flagAppName:
			cfg.AppName, ferr = fs.GetString(f.Name)
		case flagAppChannel:
			cfg.AppChannel, ferr = fs.GetUint32(f.Name)
		case flagBitrate:
			cfg.Bitrate, ferr = fs.GetUint32(f.Name)
		case flagVirtual:
			cfg.Virtual, ferr = fs.GetBool(f.Name)
		case flagDebug:
			cfg.Debug, ferr = fs.GetBool(f.Name)
		case flagLogFile:
			cfg.LogFile, ferr = fs.GetString(f.Name)
		}
	})
	if ferr != nil {
		return nil, ferr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
