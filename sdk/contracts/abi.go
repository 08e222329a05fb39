package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const troveManagerABI = `[
 {"type":"function","name":"Troves","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"debt","type":"uint256"},{"name":"coll","type":"uint256"},{"name":"stake","type":"uint256"},{"name":"status","type":"uint8"},{"name":"arrayIndex","type":"uint128"}]},
 {"type":"function","name":"rewardSnapshots","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"collateral","type":"uint256"},{"name":"debt","type":"uint256"}]},
 {"type":"function","name":"L_Collateral","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"L_Debt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getTroveOwnersCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getEntireSystemColl","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getEntireSystemDebt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getCurrentICR","stateMutability":"view","inputs":[{"name":"_borrower","type":"address"},{"name":"_price","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getBorrowingRateWithDecay","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"event","name":"TroveUpdated","anonymous":false,"inputs":[{"name":"_borrower","type":"address","indexed":true},{"name":"_debt","type":"uint256","indexed":false},{"name":"_coll","type":"uint256","indexed":false},{"name":"_stake","type":"uint256","indexed":false},{"name":"_operation","type":"uint8","indexed":false}]},
 {"type":"event","name":"TroveLiquidated","anonymous":false,"inputs":[{"name":"_borrower","type":"address","indexed":true},{"name":"_debt","type":"uint256","indexed":false},{"name":"_coll","type":"uint256","indexed":false},{"name":"_operation","type":"uint8","indexed":false}]},
 {"type":"event","name":"LTermsUpdated","anonymous":false,"inputs":[{"name":"_L_Collateral","type":"uint256","indexed":false},{"name":"_L_Debt","type":"uint256","indexed":false}]}
]`

const sortedTrovesABI = `[
 {"type":"function","name":"getSize","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getFirst","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"getLast","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"getNext","stateMutability":"view","inputs":[{"name":"_id","type":"address"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"getPrev","stateMutability":"view","inputs":[{"name":"_id","type":"address"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"findInsertPosition","stateMutability":"view","inputs":[{"name":"_ICR","type":"uint256"},{"name":"_price","type":"uint256"},{"name":"_prevId","type":"address"},{"name":"_nextId","type":"address"}],"outputs":[{"name":"","type":"address"},{"name":"","type":"address"}]}
]`

const hintHelpersABI = `[
 {"type":"function","name":"getApproxHint","stateMutability":"view","inputs":[{"name":"_CR","type":"uint256"},{"name":"_numTrials","type":"uint256"},{"name":"_price","type":"uint256"},{"name":"_inputRandomSeed","type":"uint256"}],"outputs":[{"name":"hintAddress","type":"address"},{"name":"diff","type":"uint256"},{"name":"latestRandomSeed","type":"uint256"}]}
]`

const stabilityPoolABI = `[
 {"type":"function","name":"deposits","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"depositSnapshots","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"gainPerUnit","type":"uint256"},{"name":"lossPerUnit","type":"uint256"}]},
 {"type":"function","name":"cumulativeGainPerUnit","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"cumulativeLossPerUnit","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getTotalDeposits","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"provideToSP","stateMutability":"nonpayable","inputs":[{"name":"_amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"withdrawFromSP","stateMutability":"nonpayable","inputs":[{"name":"_amount","type":"uint256"}],"outputs":[]},
 {"type":"event","name":"UserDepositChanged","anonymous":false,"inputs":[{"name":"_depositor","type":"address","indexed":true},{"name":"_newDeposit","type":"uint256","indexed":false}]},
 {"type":"event","name":"AccumulatorsUpdated","anonymous":false,"inputs":[{"name":"_gainPerUnit","type":"uint256","indexed":false},{"name":"_lossPerUnit","type":"uint256","indexed":false}]}
]`

const priceFeedABI = `[
 {"type":"function","name":"lastGoodPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"event","name":"LastGoodPriceUpdated","anonymous":false,"inputs":[{"name":"_lastGoodPrice","type":"uint256","indexed":false}]}
]`

const borrowerOperationsABI = `[
 {"type":"function","name":"openTrove","stateMutability":"payable","inputs":[{"name":"_maxFee","type":"uint256"},{"name":"_debtAmount","type":"uint256"},{"name":"_upperHint","type":"address"},{"name":"_lowerHint","type":"address"}],"outputs":[]},
 {"type":"function","name":"adjustTrove","stateMutability":"payable","inputs":[{"name":"_maxFee","type":"uint256"},{"name":"_collWithdrawal","type":"uint256"},{"name":"_debtChange","type":"uint256"},{"name":"_isDebtIncrease","type":"bool"},{"name":"_upperHint","type":"address"},{"name":"_lowerHint","type":"address"}],"outputs":[]},
 {"type":"function","name":"closeTrove","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

// ABIs holds the parsed contract interfaces.
type ABIs struct {
	TroveManager       abi.ABI
	SortedTroves       abi.ABI
	HintHelpers        abi.ABI
	StabilityPool      abi.ABI
	PriceFeed          abi.ABI
	BorrowerOperations abi.ABI
}

// ParseABIs parses the embedded contract interfaces.
func ParseABIs() (ABIs, error) {
	var (
		out ABIs
		err error
	)
	sources := []struct {
		target *abi.ABI
		name   string
		raw    string
	}{
		{&out.TroveManager, "TroveManager", troveManagerABI},
		{&out.SortedTroves, "SortedTroves", sortedTrovesABI},
		{&out.HintHelpers, "HintHelpers", hintHelpersABI},
		{&out.StabilityPool, "StabilityPool", stabilityPoolABI},
		{&out.PriceFeed, "PriceFeed", priceFeedABI},
		{&out.BorrowerOperations, "BorrowerOperations", borrowerOperationsABI},
	}
	for _, src := range sources {
		*src.target, err = abi.JSON(strings.NewReader(src.raw))
		if err != nil {
			return ABIs{}, wrapABIError(src.name, err)
		}
	}
	return out, nil
}
