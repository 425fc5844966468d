package oracle

import (
	"fmt"
	"strconv"
	"strings"
)

// Persona is the fixed system message sent with every prompt.
const Persona = "Вы - высококвалифицированный ассистент, специализирующийся на предсказаниях, " +
	"интерпретациях карт Таро, кофейной гущи и других эзотерических практик. Ваша задача - " +
	"предоставлять пользователю глубокие, содержательные и персонализированные ответы на их вопросы. " +
	"Используйте контекст, предоставленный пользователем, чтобы сделать ответ максимально релевантным. " +
	"Если вопрос касается Таро, анализируйте карты и их возможные значения в контексте вопроса. " +
	"Если вопрос о кофейной гуще, интерпретируйте образы и символы, которые могут быть видны на изображении. " +
	"Старайтесь давать ответы, которые звучат естественно и вдохновляюще, избегая банальных фраз. " +
	"Если контекст или данные отсутствуют, используйте общие знания и интуицию, чтобы дать полезный совет. " +
	"Всегда сохраняйте тон доброжелательный и поддерживающий, чтобы пользователь чувствовал себя комфортно."

// Reading is one divination request. Each variant renders its own prompt;
// optional fields that are empty are left out of it.
type Reading interface {
	// Name identifies the variant in logs.
	Name() string
	Prompt() string
	isReading()
}

// TarotDraw interprets named cards drawn for a question.
type TarotDraw struct {
	Question string
	Cards    []string
}

// TarotReveal interprets cards the caller picked by index.
type TarotReveal struct {
	Cards       []int
	ReadingType string
	// TimePeriods pairs one period with each card; ignored unless the
	// lengths match.
	TimePeriods []string
}

// CoffeeFortune interprets an uploaded coffee-ground photo for a question.
type CoffeeFortune struct {
	Question string
}

// CoffeeSymbols interprets coffee-ground symbols picked by index.
type CoffeeSymbols struct {
	Area        string
	Cards       []int
	ReadingType string
}

// PersonalForecast builds a forecast from picked cards.
type PersonalForecast struct {
	Cards    []int
	Category string
}

// RuneReading interprets runes for a relationship question.
type RuneReading struct {
	Runes              []int
	RelationshipAspect string
	RuneAspect         string
}

// SituationAnalysis analyses a situation from picked cards.
type SituationAnalysis struct {
	Cards    []int
	Category string
}

// SpiritualGrowth gives growth advice from picked cards.
type SpiritualGrowth struct {
	Cards  []int
	Aspect string
}

// TarotSpread performs a spread of the named type.
type TarotSpread struct {
	Type string
}

// CardInsight interprets a single named card.
type CardInsight struct {
	Card     string
	Question string
}

// FreePrompt forwards a caller question, framed as a tarot question when
// the mode is "tarot" and cards are supplied.
type FreePrompt struct {
	Mode     string
	Question string
	Cards    []string
}

func (TarotDraw) Name() string         { return "tarot_draw" }
func (TarotReveal) Name() string       { return "tarot_reveal" }
func (CoffeeFortune) Name() string     { return "coffee_fortune" }
func (CoffeeSymbols) Name() string     { return "coffee_symbols" }
func (PersonalForecast) Name() string  { return "personal_forecast" }
func (RuneReading) Name() string       { return "rune_reading" }
func (SituationAnalysis) Name() string { return "situation_analysis" }
func (SpiritualGrowth) Name() string   { return "spiritual_growth" }
func (TarotSpread) Name() string       { return "tarot_spread" }
func (CardInsight) Name() string       { return "card_insight" }
func (FreePrompt) Name() string        { return "free_prompt" }

func (TarotDraw) isReading()         {}
func (TarotReveal) isReading()       {}
func (CoffeeFortune) isReading()     {}
func (CoffeeSymbols) isReading()     {}
func (PersonalForecast) isReading()  {}
func (RuneReading) isReading()       {}
func (SituationAnalysis) isReading() {}
func (SpiritualGrowth) isReading()   {}
func (TarotSpread) isReading()       {}
func (CardInsight) isReading()       {}
func (FreePrompt) isReading()        {}

func (r TarotDraw) Prompt() string {
	return fmt.Sprintf("Интерпретируй карты Таро в контексте вопроса: %s. Карты: %s.",
		r.Question, strings.Join(r.Cards, ", "))
}

func (r TarotReveal) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Интерпретируй карты Таро. Выбранные карты (индексы): %s.", joinInts(r.Cards))
	if r.ReadingType != "" {
		fmt.Fprintf(&b, " Тип расклада: %s.", r.ReadingType)
	}
	if len(r.TimePeriods) > 0 && len(r.TimePeriods) == len(r.Cards) {
		for i, period := range r.TimePeriods {
			fmt.Fprintf(&b, " Карта %d соответствует периоду: %s.", r.Cards[i], period)
		}
	}
	return b.String()
}

func (r CoffeeFortune) Prompt() string {
	return fmt.Sprintf("Интерпретируй изображение кофейной гущи в контексте вопроса: %s.", r.Question)
}

func (r CoffeeSymbols) Prompt() string {
	parts := []string{"Интерпретируй символы кофейной гущи."}
	if r.Area != "" {
		parts = append(parts, fmt.Sprintf("Область чашки: %s.", r.Area))
	}
	if len(r.Cards) > 0 {
		parts = append(parts, fmt.Sprintf("Выбранные карты (индексы): %s.", joinInts(r.Cards)))
	}
	if r.ReadingType != "" {
		parts = append(parts, fmt.Sprintf("Тип гадания: %s.", r.ReadingType))
	}
	return strings.Join(parts, " ")
}

func (r PersonalForecast) Prompt() string {
	p := fmt.Sprintf("Составь персональный прогноз на основе выбранных карт (индексы): %s.", joinInts(r.Cards))
	return withOptional(p, "Категория", r.Category)
}

func (r RuneReading) Prompt() string {
	p := fmt.Sprintf("Интерпретируй руны для анализа отношений. Выбранные руны (индексы): %s.", joinInts(r.Runes))
	p = withOptional(p, "Аспект отношений", r.RelationshipAspect)
	return withOptional(p, "Аспект руны", r.RuneAspect)
}

func (r SituationAnalysis) Prompt() string {
	p := fmt.Sprintf("Проанализируй ситуацию на основе выбранных карт (индексы): %s.", joinInts(r.Cards))
	return withOptional(p, "Категория", r.Category)
}

func (r SpiritualGrowth) Prompt() string {
	p := fmt.Sprintf("Дай совет по духовному росту на основе выбранной карты (индексы): %s.", joinInts(r.Cards))
	return withOptional(p, "Аспект", r.Aspect)
}

func (r TarotSpread) Prompt() string {
	return fmt.Sprintf("Сделай расклад Таро типа: %s.", r.Type)
}

func (r CardInsight) Prompt() string {
	question := r.Question
	if question == "" {
		question = "Общая интерпретация"
	}
	return fmt.Sprintf("Интерпретируй карту %s в контексте вопроса: %s.", r.Card, question)
}

func (r FreePrompt) Prompt() string {
	if r.Mode == "tarot" && len(r.Cards) > 0 {
		return TarotDraw{Question: r.Question, Cards: r.Cards}.Prompt()
	}
	return r.Question
}

func withOptional(prompt, label, value string) string {
	if value == "" {
		return prompt
	}
	return prompt + " " + label + ": " + value + "."
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}
