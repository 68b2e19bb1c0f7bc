package chain

// Minimal ABIs, same approach as the inline quoter/router ABIs: only the
// methods this client calls.

const erc20ABI = `[
  {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"spender","type":"address"}],"name":"allowance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const exchangeABI = `[
  {"inputs":[
     {"components":[
        {"internalType":"address","name":"user","type":"address"},
        {"internalType":"address","name":"sellToken","type":"address"},
        {"internalType":"address","name":"buyToken","type":"address"},
        {"internalType":"uint256","name":"sellAmount","type":"uint256"},
        {"internalType":"uint256","name":"buyAmount","type":"uint256"},
        {"internalType":"uint256","name":"expirationTimeSeconds","type":"uint256"}],
      "internalType":"struct LibOrder.Order","name":"order","type":"tuple"},
     {"internalType":"bytes","name":"makerSignature","type":"bytes"},
     {"internalType":"uint256","name":"fillAmount","type":"uint256"},
     {"internalType":"bool","name":"fillAvailable","type":"bool"}],
   "name":"fillOrder","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const wethABI = `[
  {"inputs":[],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"wad","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`
