package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, KeyRateLimited, "Too many AI requests. Please wait a few seconds before trying again.")
	message.SetString(lang, KeyApology, "Sorry, something went wrong while getting a response from the AI. Please try again later.")
	message.SetString(lang, KeyCardApology, "Sorry, the AI could not interpret this card right now. Please try again later or ask a different question.")
	message.SetString(lang, KeyGeneralReading, "General interpretation")

	message.SetString(lang, KeyInvalidAPIKey, "Invalid API Key")
	message.SetString(lang, KeyInvalidRequest, "Invalid request")
	message.SetString(lang, KeyUserIDRequired, "User id is required")
	message.SetString(lang, KeyInternal, "Internal server error")

	message.SetString(lang, KeyUserNotFound, "User not found")
	message.SetString(lang, KeyReferrerNotFound, "Referrer not found")
	message.SetString(lang, KeyReferrerRequired, "Referrer is required")
	message.SetString(lang, KeySelfReferral, "You cannot refer yourself")
	message.SetString(lang, KeyAlreadyReferred, "User has already been referred by someone else")
	message.SetString(lang, KeyReferralAdded, "Referral added, %d points credited to the referrer")

	message.SetString(lang, KeyEntryNotFound, "Entry not found")
	message.SetString(lang, KeyInvalidEntryID, "Invalid entry id")
	message.SetString(lang, KeyNothingToUpdate, "No update fields provided")
	message.SetString(lang, KeyEntryUpdated, "Entry updated")
	message.SetString(lang, KeyEntryDeleted, "Entry deleted")
	message.SetString(lang, KeyTarotHistoryWiped, "Tarot history deleted, %d records removed")

	message.SetString(lang, KeyPaymentIncomplete, "Payment not completed")
	message.SetString(lang, KeyPaymentFailed, "Failed to create payment")
	message.SetString(lang, KeyPaymentCancelled, "Payment cancelled by the user")
	message.SetString(lang, KeyPaymentIDRequired, "Payment id is required")
	message.SetString(lang, KeyAutopaymentEnabled, "Autopayment enabled for user %s")
	message.SetString(lang, KeyAutopaymentOff, "Autopayment disabled for user %s")

	message.SetString(lang, KeyDateLayout, "Jan 2, 2006 at 15:04")
}
