package config

const (
	defaultWorkDir            = "~/.local/share/recap/episodes"
	defaultLogDir             = "~/.local/share/recap/logs"
	defaultStateDir           = "~/.local/share/recap/state"
	defaultDownloaderBinary   = "yt-dlp"
	defaultVideoFormat        = "bestvideo[ext=mp4]/bestvideo"
	defaultAudioFormat        = "bestaudio[ext=m4a]/bestaudio"
	defaultDownloaderTimeout  = 1800
	defaultTranscriberBinary  = "whisperx"
	defaultTranscriberModel   = "large-v3"
	defaultTranscriberLang    = "en"
	defaultAnalysisModel      = "gemini-2.0-flash"
	defaultScriptModel        = "gemini-2.0-pro"
	defaultGeminiTimeout      = 120
	defaultGeminiMaxRetries   = 4
	defaultElevenLabsBaseURL  = "https://api.elevenlabs.io"
	defaultElevenLabsModelID  = "eleven_multilingual_v2"
	defaultElevenLabsTimeout  = 60
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFmpegTimeout      = 900
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Downloader: Downloader{
			Binary:         defaultDownloaderBinary,
			VideoFormat:    defaultVideoFormat,
			AudioFormat:    defaultAudioFormat,
			TimeoutSeconds: defaultDownloaderTimeout,
		},
		Transcriber: Transcriber{
			Binary:   defaultTranscriberBinary,
			Model:    defaultTranscriberModel,
			Language: defaultTranscriberLang,
			Diarize:  true,
		},
		Gemini: Gemini{
			AnalysisModel:  defaultAnalysisModel,
			ScriptModel:    defaultScriptModel,
			TimeoutSeconds: defaultGeminiTimeout,
			MaxRetries:     defaultGeminiMaxRetries,
		},
		ElevenLabs: ElevenLabs{
			BaseURL:        defaultElevenLabsBaseURL,
			ModelID:        defaultElevenLabsModelID,
			TimeoutSeconds: defaultElevenLabsTimeout,
		},
		FFmpeg: FFmpeg{
			Binary:         defaultFFmpegBinary,
			TimeoutSeconds: defaultFFmpegTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Stages:         true,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
