package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	EvaluatorOpenAI    = "openai"
	EvaluatorGemini    = "gemini"
	EvaluatorHeuristic = "heuristic"
)

// 分页默认值
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 100
)

// 答题附件允许的 MIME 类型
const (
	MimeVideo       = "video/"
	MimeAudio       = "audio/"
	MimeImage       = "image/"
	MimeText        = "text/plain"
	MimePDF         = "application/pdf"
	MimeOctetStream = "application/octet-stream"
)

var (
	AllowedAnswerMimeTypes = []string{MimeVideo, MimeAudio, MimeImage, MimeText, MimePDF}
)
