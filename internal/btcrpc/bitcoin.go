package btcrpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// BlockHeader mirrors the fields of Bitcoin Core's getblockheader (verbose)
// response that the driver and reorg detector need.
type BlockHeader struct {
	Hash              string `json:"hash"`
	Confirmations     int64  `json:"confirmations"`
	Height            int64  `json:"height"`
	Version           int32  `json:"version"`
	MerkleRoot        string `json:"merkleroot"`
	Time              int64  `json:"time"`
	Nonce             uint32 `json:"nonce"`
	Bits              string `json:"bits"`
	PreviousBlockHash string `json:"previousblockhash"`
	NextBlockHash     string `json:"nextblockhash"`
}

// GetBestBlockHash returns the hash of the node's current chain tip.
func (c *Client) GetBestBlockHash(ctx context.Context) (string, error) {
	var hash string
	err := c.Call(ctx, "getbestblockhash", nil, &hash)
	return hash, err
}

// GetBlockCount returns the height of the node's current chain tip.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	err := c.Call(ctx, "getblockcount", nil, &count)
	return count, err
}

// GetBlockHash returns the block hash at the given height on the node's
// active chain.
func (c *Client) GetBlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	err := c.Call(ctx, "getblockhash", []interface{}{height}, &hash)
	return hash, err
}

// GetBlockHeader returns verbose header metadata for the given block hash.
func (c *Client) GetBlockHeader(ctx context.Context, hash string) (*BlockHeader, error) {
	var hdr BlockHeader
	err := c.Call(ctx, "getblockheader", []interface{}{hash, true}, &hdr)
	if err != nil {
		return nil, err
	}
	return &hdr, nil
}

// GetBlock fetches the raw serialized block (verbosity 0) and decodes it
// into a wire.MsgBlock, giving the driver and updater direct access to
// every transaction's inputs, outputs, and witness data.
func (c *Client) GetBlock(ctx context.Context, hash string) (*wire.MsgBlock, error) {
	var rawHex string
	if err := c.Call(ctx, "getblock", []interface{}{hash, 0}, &rawHex); err != nil {
		return nil, fmt.Errorf("btcrpc: getblock %s: %w", hash, err)
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("btcrpc: decode block hex: %w", err)
	}
	var block wire.MsgBlock
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("btcrpc: deserialize block %s: %w", hash, err)
	}
	return &block, nil
}

// RawTransactionInfo is the subset of Bitcoin Core's verbose
// getrawtransaction response the commitment check needs: how many
// confirmations the transaction's containing block has.
type RawTransactionInfo struct {
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"blockhash"`
}

// GetRawTransactionInfo fetches verbose metadata for txid without
// decoding the transaction body, used as a fallback by the taproot
// commitment check (§4.7) when a prior output predates this indexer's
// own TXO rows.
func (c *Client) GetRawTransactionInfo(ctx context.Context, txid string) (*RawTransactionInfo, error) {
	var info RawTransactionInfo
	if err := c.Call(ctx, "getrawtransaction", []interface{}{txid, 1}, &info); err != nil {
		return nil, fmt.Errorf("btcrpc: getrawtransaction (verbose) %s: %w", txid, err)
	}
	return &info, nil
}

// GetRawTransaction fetches the raw serialized transaction for txid and
// decodes it into a wire.MsgTx. txindex must be enabled on the node for
// transactions outside the most recent blocks to resolve.
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (*wire.MsgTx, error) {
	var rawHex string
	if err := c.Call(ctx, "getrawtransaction", []interface{}{txid, 0}, &rawHex); err != nil {
		return nil, fmt.Errorf("btcrpc: getrawtransaction %s: %w", txid, err)
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("btcrpc: decode tx hex: %w", err)
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("btcrpc: deserialize tx %s: %w", txid, err)
	}
	return &tx, nil
}
