package l1encode

// Embedded ABI fragments for the three diamond-proxy entry points the
// encoder targets. Only the methods this package packs are declared;
// narrowing the ABI to what is actually used keeps decode errors close to
// their call site instead of surfacing as opaque reflection panics.

const storedBatchInfoComponents = `{"name":"batchNumber","type":"uint64"},` +
	`{"name":"batchHash","type":"bytes32"},` +
	`{"name":"indexRepeatedStorageChanges","type":"uint64"},` +
	`{"name":"numberOfLayer1Txs","type":"uint64"},` +
	`{"name":"priorityOperationsHash","type":"bytes32"},` +
	`{"name":"l2LogsTreeRoot","type":"bytes32"},` +
	`{"name":"timestamp","type":"uint64"},` +
	`{"name":"commitment","type":"bytes32"}`

const commitABIJSON = `[
	{
		"name": "commitBatchesSharedBridge",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "chainId", "type": "uint256"},
			{"name": "lastCommittedBatchNumber", "type": "uint64"},
			{"name": "newBatchesData", "type": "tuple[]", "components": [` + storedBatchInfoComponents + `]},
			{"name": "pubdataDa", "type": "uint8"}
		],
		"outputs": []
	},
	{
		"name": "commitBatchesSharedBridgeGateway",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "chainId", "type": "uint256"},
			{"name": "lastCommittedBatchNumber", "type": "uint64"},
			{"name": "newBatchesData", "type": "tuple[]", "components": [` + storedBatchInfoComponents + `]},
			{"name": "pubdataDa", "type": "uint8"}
		],
		"outputs": []
	}
]`

const proveABIJSON = `[
	{
		"name": "proveBatchesSharedBridge",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "chainId", "type": "uint256"},
			{"name": "prevBatch", "type": "tuple", "components": [` + storedBatchInfoComponents + `]},
			{"name": "committedBatches", "type": "tuple[]", "components": [` + storedBatchInfoComponents + `]},
			{"name": "proof", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"name": "proveBatchesSharedBridgeGateway",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "chainId", "type": "uint256"},
			{"name": "prevBatch", "type": "tuple", "components": [` + storedBatchInfoComponents + `]},
			{"name": "committedBatches", "type": "tuple[]", "components": [` + storedBatchInfoComponents + `]},
			{"name": "proof", "type": "bytes"}
		],
		"outputs": []
	}
]`

const executeABIJSON = `[
	{
		"name": "executeBatches",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "chainId", "type": "uint256"},
			{"name": "batchesData", "type": "tuple[]", "components": [` + storedBatchInfoComponents + `]}
		],
		"outputs": []
	},
	{
		"name": "executeBatchesSharedBridgeGateway",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "chainId", "type": "uint256"},
			{"name": "firstBatch", "type": "uint64"},
			{"name": "lastBatch", "type": "uint64"},
			{"name": "payload", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"name": "executeBatchesPayload",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "batchesData", "type": "tuple[]", "components": [` + storedBatchInfoComponents + `]},
			{"name": "priorityOpsProofs", "type": "bytes[]"}
		],
		"outputs": []
	},
	{
		"name": "executeBatchesPayloadV2",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "batchesData", "type": "tuple[]", "components": [` + storedBatchInfoComponents + `]},
			{"name": "priorityOpsProofs", "type": "bytes[]"},
			{"name": "l2ToL1Logs", "type": "tuple[]", "components": [
				{"name": "key", "type": "bytes32"},
				{"name": "value", "type": "bytes32"}
			]},
			{"name": "messages", "type": "bytes[]"},
			{"name": "messageRoots", "type": "bytes32[]"}
		],
		"outputs": []
	}
]`
