package i18n

// Catalog keys.
const (
	KeyRateLimited        = "oracle.rate_limited"
	KeyApology            = "oracle.apology"
	KeyCardApology        = "oracle.card_apology"
	KeyGeneralReading     = "oracle.general_reading"
	KeyInvalidAPIKey      = "auth.invalid_key"
	KeyInvalidRequest     = "request.invalid"
	KeyUserIDRequired     = "request.user_id_required"
	KeyInternal           = "internal"
	KeyUserNotFound       = "user.not_found"
	KeyReferrerNotFound   = "referral.referrer_not_found"
	KeyReferrerRequired   = "referral.referrer_required"
	KeySelfReferral       = "referral.self"
	KeyAlreadyReferred    = "referral.already_referred"
	KeyReferralAdded      = "referral.added"
	KeyEntryNotFound      = "history.entry_not_found"
	KeyInvalidEntryID     = "history.invalid_entry_id"
	KeyNothingToUpdate    = "history.nothing_to_update"
	KeyEntryUpdated       = "history.entry_updated"
	KeyEntryDeleted       = "history.entry_deleted"
	KeyTarotHistoryWiped  = "history.tarot_wiped"
	KeyPaymentIncomplete  = "payment.incomplete"
	KeyPaymentFailed      = "payment.gateway_failed"
	KeyPaymentCancelled   = "payment.cancelled"
	KeyPaymentIDRequired  = "payment.id_required"
	KeyAutopaymentEnabled = "payment.autopayment_enabled"
	KeyAutopaymentOff     = "payment.autopayment_disabled"
	KeyDateLayout         = "format.date_layout"
)
