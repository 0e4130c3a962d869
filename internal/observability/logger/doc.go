// Package logger expone un logger zap singleton con scoping por contexto.
//
// Init se llama una vez en main; el resto del código usa From(ctx), que
// devuelve el logger inyectado por el middleware de request o, si no hay,
// el singleton.
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Orchestrator.Authorize"))
//	log.Info("policy denied", logger.ClientID(clientID), logger.Policy(name))
//
// "dev" usa consola con colores, "prod" usa JSON.
package logger
