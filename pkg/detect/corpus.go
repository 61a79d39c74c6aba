package detect

type labeledSample struct {
	label string
	text  string
}

// trainingCorpus seeds the statistical tier. Scam samples are paraphrased
// from real reported scripts; ham samples are ordinary transactional and
// personal messages.
var trainingCorpus = []labeledSample{
	{LabelScam, "your electricity connection will be disconnected tonight pay immediately to avoid disconnection"},
	{LabelScam, "this is officer from cbi your parcel contains illegal items you are under digital arrest stay on video call"},
	{LabelScam, "congratulations you have won lottery prize of 25 lakh pay processing fee to claim"},
	{LabelScam, "your kyc is pending click this link to update or account will be blocked"},
	{LabelScam, "work from home part time job earn daily 5000 just complete simple tasks pay registration fee"},
	{LabelScam, "i have your video recording it will go viral to all your contacts unless you pay now"},
	{LabelScam, "your bank account is suspended verify your details urgently to restore access"},
	{LabelScam, "refund of 4999 approved share the otp received on your phone to process"},
	{LabelScam, "sir please install anydesk so i can help you complete the verification"},
	{LabelScam, "you have won lucky draw from popular online shopping send bank details to receive prize money"},
	{LabelScam, "income tax department final notice pay pending dues through this upi immediately"},
	{LabelScam, "madam your pan card is linked to money laundering case appear on video call with police"},
	{LabelScam, "hello dear i am hr from telegram job offer salary credited daily register now small deposit"},
	{LabelScam, "your son has been arrested by police send money now for bail do not tell anyone"},
	{LabelScam, "free gift card claim within 10 minutes click the link and enter card number"},
	{LabelHam, "hey are we still on for dinner tonight at 8"},
	{LabelHam, "your order has been shipped and will arrive on monday"},
	{LabelHam, "mom i will call you after my meeting"},
	{LabelHam, "the meeting is moved to conference room b tomorrow morning"},
	{LabelHam, "rs 500 has been debited from your account for your electricity bill payment thank you"},
	{LabelHam, "your otp is 482913 do not share this otp with anyone it is valid for 10 min"},
	{LabelHam, "happy birthday hope you have a wonderful day"},
	{LabelHam, "the plumber is coming between 2 and 4 please be home"},
	{LabelHam, "reminder your dentist appointment is on thursday at 3pm"},
	{LabelHam, "dinner was great last night thanks for the recommendation"},
}
