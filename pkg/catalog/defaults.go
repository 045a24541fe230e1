package catalog

// DefaultServices is the built-in catalog: two document-processing backends per
// implementation language family and a static documentation server.
func DefaultServices() []ServiceDefinition {
	pythonPrepare := Command{"python", "-m", "pip", "install", "-r", "requirements.txt"}

	return []ServiceDefinition{
		{
			Name:              "python_blueprint_api",
			Kind:              KindBackend,
			Language:          LanguagePython,
			Path:              "python/BlueprintAPI",
			StartCommand:      Command{"python", "-m", "uvicorn", "src.api:app", "--host", "0.0.0.0", "--port", PortPlaceholder},
			DefaultPort:       8000,
			HealthCheckPath:   "/health",
			PrepareCommand:    pythonPrepare,
			PrepareWhenExists: "requirements.txt",
		},
		{
			Name:              "python_textract",
			Kind:              KindBackend,
			Language:          LanguagePython,
			Path:              "python/Textract",
			StartCommand:      Command{"python", "src/lambda_local.py"},
			DefaultPort:       8001,
			HealthCheckPath:   "/health",
			PrepareCommand:    pythonPrepare,
			PrepareWhenExists: "requirements.txt",
		},
		{
			Name:              "python_analyze_document",
			Kind:              KindBackend,
			Language:          LanguagePython,
			Path:              "python/AnalyzeDocument",
			StartCommand:      Command{"python", "src/api.py"},
			DefaultPort:       8002,
			HealthCheckPath:   "/health",
			PrepareCommand:    pythonPrepare,
			PrepareWhenExists: "requirements.txt",
		},
		{
			Name:            "csharp_blueprint_api",
			Kind:            KindBackend,
			Language:        LanguageCSharp,
			Path:            "csharp/BlueprintAPI",
			StartCommand:    Command{"dotnet", "run"},
			DefaultPort:     5000,
			HealthCheckPath: "/api/document/health",
		},
		{
			Name:            "csharp_textract",
			Kind:            KindBackend,
			Language:        LanguageCSharp,
			Path:            "csharp/Textract",
			StartCommand:    Command{"dotnet", "run"},
			DefaultPort:     5001,
			HealthCheckPath: "/health",
		},
		{
			Name:            "csharp_analyze_document",
			Kind:            KindBackend,
			Language:        LanguageCSharp,
			Path:            "csharp/AnalyzeDocument",
			StartCommand:    Command{"dotnet", "run"},
			DefaultPort:     5002,
			HealthCheckPath: "/api/document/health",
		},
		{
			Name:            "documentation_portal",
			Kind:            KindFrontend,
			Language:        LanguageHTML,
			Path:            "Docs",
			StartCommand:    Command{"python", "-m", "http.server", PortPlaceholder},
			DefaultPort:     8080,
			HealthCheckPath: "/index.html",
		},
	}
}

// Default returns the built-in catalog
func Default() *Catalog {
	catalog, err := New(DefaultServices()...)
	if err != nil {
		panic("invalid built-in catalog: " + err.Error())
	}
	return catalog
}
