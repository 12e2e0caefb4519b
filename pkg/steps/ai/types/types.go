package types

type ApiType string

const (
	// ApiTypeMock answers locally without any network access.
	ApiTypeMock   ApiType = "mock"
	ApiTypeOpenAI ApiType = "openai"
	ApiTypeGemini ApiType = "gemini"
	ApiTypeOllama ApiType = "ollama"
)

var ApiTypes = []ApiType{
	ApiTypeMock,
	ApiTypeOpenAI,
	ApiTypeGemini,
	ApiTypeOllama,
}

func (a ApiType) IsValid() bool {
	for _, t := range ApiTypes {
		if t == a {
			return true
		}
	}
	return false
}
