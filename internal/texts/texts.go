// Package texts holds every user-facing reply the bot sends.
package texts

import (
	"fmt"
	"time"
)

func Greeting(priceBytes, rewardBytes int64) string {
	return fmt.Sprintf(
		"Here you can attest your email.\n\n"+
			"Your email will be saved privately in your wallet, "+
			"only a proof of attestation will be posted publicly on the distributed ledger. "+
			"You may also choose to make your attested email public.\n\n"+
			"The price of attestation is %d Bytes. "+
			"The payment is nonrefundable even if the attestation fails for any reason.\n\n"+
			"After payment, you will receive an email with a verification code.\n\n"+
			"After you successfully verify yourself for the first time, you receive a %d Bytes reward.",
		priceBytes, rewardBytes,
	)
}

func InsertMyAddress() string {
	return "Please send me your address that you wish to attest (click ... and Insert my address). " +
		"Make sure you are in a single-address wallet."
}

func InsertMyEmail() string {
	return "Please send me your email that you wish to attest."
}

func GoingToAttestAddress(address string) string {
	return fmt.Sprintf("Thanks, going to attest your address %s.", address)
}

func GoingToAttestEmail(email string) string {
	return fmt.Sprintf("Thanks, going to attest your email %s.", email)
}

func PrivateOrPublic() string {
	return "Should your email be saved privately in your wallet or posted publicly?\n\n" +
		"[private](command:private)\t[public](command:public)"
}

func PrivateChosen() string {
	return "Your email will be kept private and stored in your wallet.\n\n" +
		"Click [public](command:public) now if you changed your mind."
}

func PublicChosen(email string) string {
	return fmt.Sprintf(
		"Your email %s will be posted into the public database and will be visible to everyone. "+
			"You cannot remove it later.\n\n"+
			"Click [private](command:private) now if you changed your mind.",
		email,
	)
}

func PleasePay(receivingAddress string, price int64) string {
	return fmt.Sprintf("Please pay for the attestation: [attestation payment](byteball:%s?amount=%d).",
		receivingAddress, price)
}

func PleasePayOrPrivacy(receivingAddress string, price int64, postPublicly *bool) string {
	if postPublicly == nil {
		return PrivateOrPublic()
	}
	return PleasePay(receivingAddress, price)
}

func ReceivedYourPayment(amount int64) string {
	return fmt.Sprintf("Received your payment of %d Bytes, waiting for confirmation. It usually takes 5-10 minutes.", amount)
}

func PaymentIsConfirmed() string {
	return "Your payment is confirmed."
}

func ReceivedPaymentInWrongAsset() string {
	return "Received payment in wrong asset."
}

func ReceivedPaymentFromMultipleAddresses() string {
	return "Received a payment but looks like it was not sent from a single-address wallet."
}

func ReceivedPaymentNotFromExpectedAddress(address string) string {
	return fmt.Sprintf(
		"Received a payment but it was not sent from the expected address %s. "+
			"Please pay from your attested address.",
		address,
	)
}

func ReceivedLessThanExpected(received, expected int64, late bool) string {
	text := fmt.Sprintf("Received %d Bytes from you", received)
	if late {
		return text + ". Your payment is too late and less than the current price."
	}
	return text + fmt.Sprintf(", which is less than the expected %d Bytes.", expected)
}

func EmailWasSent(email string) string {
	return fmt.Sprintf(
		"Verification code was sent to %s. Please enter the code here, exactly as it appears in the email.\n\n"+
			"If you didn't receive it, type [send email again](command:send email again).",
		email,
	)
}

func EmailSubjectVerification() string {
	return "Email verification"
}

func EmailBodyVerification(code string) string {
	return fmt.Sprintf(
		"Your verification code is: %s\n\n"+
			"Please send this code back to the attestation bot chat to complete the verification.",
		code,
	)
}

func WrongVerificationCode(attemptsLeft int) string {
	return fmt.Sprintf("Wrong verification code. You have %d attempts left.", attemptsLeft)
}

func CurrentAttestationFailed() string {
	return "Attestation failed. If you wish to retry, please pay again."
}

func PreviousAttestationFailed() string {
	return "Your previous attestation failed. If you wish to retry, please pay again."
}

func InAttestation() string {
	return "Verification succeeded, your email is in attestation."
}

func AlreadyAttested(attestationDate time.Time) string {
	return fmt.Sprintf("You were already attested on %s. Attest another address or email if you wish.",
		attestationDate.UTC().Format("2006-01-02 15:04:05"))
}

func UnitPosted(unit string) string {
	return fmt.Sprintf("Attestation unit posted: https://explorer.obyte.org/#%s", unit)
}

func PrivateProfileBundle(bundle string) string {
	return "Save this private profile, it is the only way to prove your attested email later:\n\n" + bundle
}

func AttestedFirstTimeBonus(rewardBytes int64) string {
	return fmt.Sprintf(
		"You attested your email for the first time and will receive a welcome bonus of %d Bytes from Byteball distribution fund.",
		rewardBytes,
	)
}

func ReferredNewUser(referralRewardBytes int64) string {
	return fmt.Sprintf(
		"You referred a user who has just verified their email and you will receive a %d Bytes referral reward from Byteball distribution fund.",
		referralRewardBytes,
	)
}
