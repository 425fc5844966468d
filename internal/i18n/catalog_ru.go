package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Russian

	message.SetString(lang, KeyRateLimited, "Слишком много запросов к ИИ. Пожалуйста, подождите несколько секунд перед следующим запросом.")
	message.SetString(lang, KeyApology, "К сожалению, произошла ошибка при получении ответа от ИИ. Пожалуйста, попробуйте снова через некоторое время.")
	message.SetString(lang, KeyCardApology, "К сожалению, произошла ошибка при получении интерпретации карты от AI. Пожалуйста, попробуйте снова через некоторое время или задайте другой вопрос.")
	message.SetString(lang, KeyGeneralReading, "Общая интерпретация")

	message.SetString(lang, KeyInvalidAPIKey, "Invalid API Key")
	message.SetString(lang, KeyInvalidRequest, "Некорректный запрос")
	message.SetString(lang, KeyUserIDRequired, "Идентификатор пользователя обязателен")
	message.SetString(lang, KeyInternal, "Внутренняя ошибка сервера")

	message.SetString(lang, KeyUserNotFound, "Пользователь не найден")
	message.SetString(lang, KeyReferrerNotFound, "Пригласивший пользователь не найден")
	message.SetString(lang, KeyReferrerRequired, "Не указан пригласивший пользователь")
	message.SetString(lang, KeySelfReferral, "Нельзя пригласить самого себя")
	message.SetString(lang, KeyAlreadyReferred, "Пользователь уже был приглашен другим пользователем")
	message.SetString(lang, KeyReferralAdded, "Рефералка успешно добавлена, начислено %d баллов пригласившему пользователю")

	message.SetString(lang, KeyEntryNotFound, "Запись не найдена")
	message.SetString(lang, KeyInvalidEntryID, "Некорректный идентификатор записи")
	message.SetString(lang, KeyNothingToUpdate, "Не предоставлены данные для обновления")
	message.SetString(lang, KeyEntryUpdated, "Запись успешно обновлена")
	message.SetString(lang, KeyEntryDeleted, "Запись успешно удалена")
	message.SetString(lang, KeyTarotHistoryWiped, "История раскладов Таро успешно удалена, удалено записей: %d")

	message.SetString(lang, KeyPaymentIncomplete, "Оплата не завершена")
	message.SetString(lang, KeyPaymentFailed, "Ошибка при создании платежа")
	message.SetString(lang, KeyPaymentCancelled, "Оплата отменена пользователем")
	message.SetString(lang, KeyPaymentIDRequired, "Идентификатор платежа обязателен")
	message.SetString(lang, KeyAutopaymentEnabled, "Автоплатеж включен для пользователя %s")
	message.SetString(lang, KeyAutopaymentOff, "Автоплатеж отключен для пользователя %s")

	message.SetString(lang, KeyDateLayout, "02.01.2006 в 15:04")
}
