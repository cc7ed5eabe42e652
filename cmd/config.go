package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "fracture"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName  = "output"
	schemaFlagName  = "schema"
	rulesFlagName   = "rules"
	costsFlagName   = "costs"
	verboseFlagName = "verbose"

	costModeFlagName          = "cost-mode"
	minFieldsFlagName         = "min-fields"
	maxFieldsFlagName         = "max-fields"
	searchBoundsFlagName      = "search-bounds"
	boundsStepFlagName        = "bounds-step"
	parallelFlagName          = "parallel"
	shardFlagName             = "shard"
	typeFlagName              = "type"
	maxCandidatesFlagName     = "max-candidates"
	allowLengthChangeFlagName = "allow-length-change"
	minConfidenceFlagName     = "min-confidence"
	frameOffsetFlagName       = "frame-offset"
	pluginFilterFlagName      = "plugin-filter"
	pluginHeaderFlagName      = "plugin-header-offset"
	formatsFlagName           = "formats"

	costModeKey          = "cost.mode"
	minFieldsKey         = "coverage.min_fields"
	maxFieldsKey         = "coverage.max_fields"
	searchBoundsKey      = "coverage.search_bounds"
	boundsStepKey        = "coverage.bounds_step"
	parallelKey          = "generate.parallel"
	maxCandidatesKey     = "generate.max_candidates"
	allowLengthChangeKey = "generate.allow_length_change"
	minConfidenceKey     = "generate.min_confidence"
	frameOffsetKey       = "payload.frame_offset"
	pluginFilterKey      = "payload.plugin_filter"
	pluginHeaderKey      = "payload.plugin_header_offset"
	formatsKey           = "payload.formats"

	defaultReportsDir        = ".fracture-reports"
	defaultSchema            = "schema.yaml"
	defaultCostMode          = "occurrence"
	defaultParallel          = 1
	defaultMaxCandidates     = 8
	defaultAllowLengthChange = false
	defaultMinConfidence     = "LOW"
	defaultFrameOffset       = 0
	defaultPluginFilter      = "fracture"
	defaultPluginHeader      = 0

	envPrefix = "FRACTURE"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".fracture.log"
	defaultLogLevel      = "info"
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		slog.Debug("Config file not read", "error", err)
	}
}

func setDefaults() {
	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultReportsDir)
	viper.SetDefault(schemaFlagName, defaultSchema)
	viper.SetDefault(rulesFlagName, []string{})
	viper.SetDefault(costsFlagName, "")
	viper.SetDefault(costModeKey, defaultCostMode)
	viper.SetDefault(minFieldsKey, 0)
	viper.SetDefault(maxFieldsKey, 0)
	viper.SetDefault(searchBoundsKey, false)
	viper.SetDefault(boundsStepKey, 0)

	viper.SetDefault(parallelKey, defaultParallel)
	viper.SetDefault(maxCandidatesKey, defaultMaxCandidates)
	viper.SetDefault(allowLengthChangeKey, defaultAllowLengthChange)
	viper.SetDefault(minConfidenceKey, defaultMinConfidence)

	viper.SetDefault(frameOffsetKey, defaultFrameOffset)
	viper.SetDefault(pluginFilterKey, defaultPluginFilter)
	viper.SetDefault(pluginHeaderKey, defaultPluginHeader)
	viper.SetDefault(formatsKey, []string{})

	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Numeric slog levels, e.g. -4 for debug.
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger points the default slog logger at a rotating log file.
//
// It logs at the configured level, or at Debug when verbose is set.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	logLevel := parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	if verbose {
		logLevel = slog.LevelDebug
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
