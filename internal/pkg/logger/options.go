package logger

// Option 修改 Config
type Option func(*Config)

func WithLevel(level string) Option {
	return func(c *Config) { c.Level = level }
}

// WithFormat json 或 console
func WithFormat(format string) Option {
	return func(c *Config) { c.Format = format }
}

// WithOutput console、stderr、file 或 both
func WithOutput(output string) Option {
	return func(c *Config) { c.Output = output }
}

// WithFile 设置滚动文件输出参数
func WithFile(file FileConfig) Option {
	return func(c *Config) { c.File = file }
}

// NewWithOptions 在默认配置上应用 opts 后创建 Logger
func NewWithOptions(opts ...Option) (*Logger, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// Development stderr 上的 debug 级彩色控制台输出
func Development() (*Logger, error) {
	return NewWithOptions(WithLevel("debug"), WithFormat("console"), WithOutput("stderr"))
}
