package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// Intents the interpreter can return
const (
	CommandGetPlantOutput = "GetPlantOutput"
	CommandGetGridTotal   = "GetGridTotal"
	CommandGeneralQuery   = "GeneralQuery"
)

// AgentResponse defines the structured output from the OpenAI agent.
type AgentResponse struct {
	CommandName string `json:"command_name" jsonschema_description:"The command to execute: GetPlantOutput, GetGridTotal or GeneralQuery"`
	PlantKey    string `json:"plant_key" jsonschema_description:"The key of the plant from the supported list, if applicable"`
	UserMessage string `json:"user_message" jsonschema_description:"A message to show back to the user in their original language"`
}

// PlantOption is a plant the user may ask about
type PlantOption struct {
	Key  string
	Name string
}

// OpenAIService defines the interface for interacting with the OpenAI agent.
type OpenAIService interface {
	InterpretUserQuery(ctx context.Context, userMessage string, plants []PlantOption) (*AgentResponse, error)
}

// openAIServiceImpl implements the OpenAIService interface.
type openAIServiceImpl struct {
	client openai.Client
	schema interface{}
	logger *zap.Logger
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// NewOpenAIService creates and initializes a new OpenAIService.
func NewOpenAIService(apiKey string, logger *zap.Logger, opts ...option.RequestOption) (OpenAIService, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is not set")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	schema := GenerateSchema[AgentResponse]()

	return &openAIServiceImpl{
		client: client,
		schema: schema,
		logger: logger.Named("openai"),
	}, nil
}

func systemPrompt(plants []PlantOption) string {
	known := make([]string, 0, len(plants))
	for _, p := range plants {
		known = append(known, fmt.Sprintf("%s (%s)", p.Key, p.Name))
	}

	return fmt.Sprintf(`You are a terse, precise assistant for a bot that reports live output of Swedish nuclear power plants.

Requirements:
- You understand Swedish and English.
- You reply in the same language the user used.
- Figures come from the bot, never invent numbers yourself.

Known plants (key followed by display name): %s

Behavior:
1. If the user wants the output of one specific plant or one of its reactors:
   - intent = "%s"
   - plant_key: the matching key from the list; if it is missing or ambiguous, leave plant_key as an empty string.
   - user_message: a one-line confirmation in the user's language.
2. If the user wants the total output of Swedish nuclear power, or how many reactors are running:
   - intent = "%s"
   - plant_key = ""
   - user_message: a one-line confirmation in the user's language.
3. Otherwise (greetings, small talk, unrelated questions):
   - intent = "%s"
   - plant_key = ""
   - user_message: a short reply in the user's language pointing them at /help.

Output **strictly** in JSON.`, strings.Join(known, ", "), CommandGetPlantOutput, CommandGetGridTotal, CommandGeneralQuery)
}

// InterpretUserQuery sends a message to the OpenAI agent and returns the structured response.
func (s *openAIServiceImpl) InterpretUserQuery(ctx context.Context, userMessage string, plants []PlantOption) (*AgentResponse, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "agent_response",
		Description: openai.String("Structured response containing command, plant key, and user message"),
		Schema:      s.schema,
		Strict:      openai.Bool(true),
	}

	respFormat := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(plants)),
			openai.UserMessage(userMessage),
		},
		ResponseFormat: respFormat,
		Model:          openai.ChatModelGPT4o,
	})

	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}

	agentResp, err := parseAgentResponse(chat.Choices[0].Message.Content)
	if err != nil {
		s.logger.Warn("Failed to unmarshal OpenAI response",
			zap.Error(err), zap.String("raw", chat.Choices[0].Message.Content))
		return nil, err
	}

	return agentResp, nil
}

func parseAgentResponse(content string) (*AgentResponse, error) {
	var agentResp AgentResponse
	if err := json.Unmarshal([]byte(content), &agentResp); err != nil {
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}
	agentResp.PlantKey = strings.ToLower(strings.TrimSpace(agentResp.PlantKey))
	return &agentResp, nil
}
