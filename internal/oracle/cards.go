package oracle

import (
	"math/rand/v2"
	"slices"
)

// SpreadThreeCards is the only multi-card spread; every other spread type
// draws a single card.
const SpreadThreeCards = "3_cards"

var majorArcana = []string{
	"The Fool", "The Magician", "The High Priestess", "The Empress", "The Emperor",
	"The Hierophant", "The Lovers", "The Chariot", "Strength", "The Hermit",
	"Wheel of Fortune", "Justice", "The Hanged Man", "Death", "Temperance",
	"The Devil", "The Tower", "The Star", "The Moon", "The Sun",
	"Judgement", "The World",
}

var (
	suits = []string{"Wands", "Cups", "Swords", "Pentacles"}
	ranks = []string{
		"Ace", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine", "Ten",
		"Page", "Knight", "Queen", "King",
	}
)

// Deck is the 78-card catalogue: the Major Arcana followed by each suit
// from Ace to King.
var Deck = buildDeck()

func buildDeck() []string {
	deck := slices.Clone(majorArcana)
	for _, suit := range suits {
		for _, rank := range ranks {
			deck = append(deck, rank+" of "+suit)
		}
	}
	return deck
}

// SpreadSize returns how many cards a spread draws.
func SpreadSize(spread string) int {
	if spread == SpreadThreeCards {
		return 3
	}
	return 1
}

// Draw picks SpreadSize(spread) distinct cards from Deck. A nil rng uses
// the global source.
func Draw(spread string, rng *rand.Rand) []string {
	n := SpreadSize(spread)
	var perm []int
	if rng == nil {
		perm = rand.Perm(len(Deck))
	} else {
		perm = rng.Perm(len(Deck))
	}
	cards := make([]string, n)
	for i := range n {
		cards[i] = Deck[perm[i]]
	}
	return cards
}

// Meaning is the upright and reversed reading of a card.
type Meaning struct {
	Name     string `json:"name"`
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

// Meanings lists the short meanings of the Major Arcana.
var Meanings = []Meaning{
	{"The Fool", "Новый старт, приключения", "Безрассудство, страх перед изменениями"},
	{"The Magician", "Мастерство, творчество", "Манипуляция, неиспользованный потенциал"},
	{"The High Priestess", "Интуиция, тайны", "Скрытые мотивы, отстраненность"},
	{"The Empress", "Изобилие, забота", "Зависимость, застой"},
	{"The Emperor", "Порядок, власть", "Деспотизм, негибкость"},
	{"The Hierophant", "Традиции, наставничество", "Догматизм, бунт"},
	{"The Lovers", "Любовь, гармония, выбор", "Разлад, неверный выбор"},
	{"The Chariot", "Воля, победа", "Потеря контроля, агрессия"},
	{"Strength", "Мужество, терпение", "Неуверенность, слабость"},
	{"The Hermit", "Самопознание, мудрость", "Одиночество, замкнутость"},
	{"Wheel of Fortune", "Удача, поворот судьбы", "Невезение, сопротивление переменам"},
	{"Justice", "Справедливость, честность", "Несправедливость, уклонение от ответственности"},
	{"The Hanged Man", "Пауза, новый взгляд", "Промедление, бесполезная жертва"},
	{"Death", "Завершение, трансформация", "Страх перемен, застой"},
	{"Temperance", "Баланс, умеренность", "Крайности, нетерпение"},
	{"The Devil", "Страсть, материальность", "Зависимость, освобождение от оков"},
	{"The Tower", "Внезапные перемены, откровение", "Страх катастрофы, отложенный кризис"},
	{"The Star", "Надежда, вдохновение", "Уныние, потеря веры"},
	{"The Moon", "Воображение, подсознание", "Иллюзии, тревога"},
	{"The Sun", "Радость, успех", "Временные трудности, излишний оптимизм"},
	{"Judgement", "Пробуждение, итог", "Самокритика, сомнения"},
	{"The World", "Завершенность, целостность", "Незавершенность, задержки"},
}
