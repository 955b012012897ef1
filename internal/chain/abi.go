package chain

import "github.com/vadiminshakov/depositledger/internal/domain"

// eventsABI covers the events of the three instrument contracts.
// Transfer and Approval follow ERC-20; the vault adds deposit, withdrawal,
// redemption and NAV events.
const eventsABI = `[
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false}]},
  {"type":"event","name":"Approval","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"spender","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false}]},
  {"type":"event","name":"Deposit","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"assets","type":"uint256","indexed":false},
    {"name":"shares","type":"uint256","indexed":false}]},
  {"type":"event","name":"Withdraw","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"assets","type":"uint256","indexed":false},
    {"name":"shares","type":"uint256","indexed":false}]},
  {"type":"event","name":"RedeemRequest","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"shares","type":"uint256","indexed":false}]},
  {"type":"event","name":"FulfilledRedeemRequests","anonymous":false,"inputs":[
    {"name":"shares","type":"uint256","indexed":false},
    {"name":"assets","type":"uint256","indexed":false}]},
  {"type":"event","name":"RecalculatedNAV","anonymous":false,"inputs":[
    {"name":"navValue","type":"uint256","indexed":false},
    {"name":"shareToAssetPrice","type":"uint256","indexed":false}]}
]`

const (
	eventTransfer       = "Transfer"
	eventApproval       = "Approval"
	eventDeposit        = "Deposit"
	eventWithdraw       = "Withdraw"
	eventRedeemRequest  = "RedeemRequest"
	eventFulfilled      = "FulfilledRedeemRequests"
	eventRecalculateNAV = "RecalculatedNAV"
)

// accepted lists the events each instrument is indexed for.
var accepted = map[domain.Source]map[string]bool{
	domain.SourceVault: {
		eventTransfer: true, eventApproval: true, eventDeposit: true, eventWithdraw: true,
		eventRedeemRequest: true, eventFulfilled: true, eventRecalculateNAV: true,
	},
	domain.SourcePool:   {eventTransfer: true, eventApproval: true},
	domain.SourceStable: {eventTransfer: true, eventApproval: true},
}
