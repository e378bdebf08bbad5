package core

import (
	"path"
	"strings"
)

var extLanguages = map[string]string{
	".c":     "c",
	".cpp":   "cpp",
	".cs":    "csharp",
	".css":   "css",
	".go":    "go",
	".h":     "c",
	".hpp":   "cpp",
	".html":  "html",
	".java":  "java",
	".js":    "javascript",
	".json":  "json",
	".jsx":   "javascriptreact",
	".kt":    "kotlin",
	".md":    "markdown",
	".php":   "php",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
	".tf":    "terraform",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".yaml":  "yaml",
	".yml":   "yaml",
}

// languageOf derives the language tag for telemetry from the file's
// extension. Unknown or missing extensions yield "plaintext".
func languageOf(fileURI string) string {
	ext := strings.ToLower(path.Ext(fileURI))
	if lang, ok := extLanguages[ext]; ok {
		return lang
	}
	return "plaintext"
}
